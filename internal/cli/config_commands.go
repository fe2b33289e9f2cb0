package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage driftbox configuration",
		Long: `Configuration management commands for driftbox.

Commands:
  init      - Write a default configuration with fresh secrets
  show      - Display current configuration (secrets masked)
  validate  - Check the configuration for the selected backends
  path      - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigValidateCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration",
		Long: `Write a default configuration: an embedded bolt metadata store and a
local filesystem blob store under the data directory, with freshly
generated session and signing secrets.

Use --force to overwrite an existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view it.")
					return nil
				}
			}

			cfg := config.New()
			if _, err := cfg.EnsureSecrets(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the configuration after DRIFTBOX_* environment overrides.
Secrets are shown only as set or not set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func secret(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(s))
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Metadata:")
	fmt.Fprintf(out, "  Driver: %s\n", cfg.Metadata.Driver)
	fmt.Fprintf(out, "  DSN:    %s\n", cfg.Metadata.DSN)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Blob:")
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Blob.Backend)
	switch cfg.Blob.Backend {
	case "fs":
		fmt.Fprintf(out, "  Root:           %s\n", cfg.Blob.Root)
		fmt.Fprintf(out, "  Signing secret: %s\n", secret(cfg.Blob.SigningSecret))
	case "s3":
		fmt.Fprintf(out, "  Bucket:     %s\n", cfg.Blob.Bucket)
		fmt.Fprintf(out, "  Region:     %s\n", cfg.Blob.Region)
		if cfg.Blob.Endpoint != "" {
			fmt.Fprintf(out, "  Endpoint:   %s\n", cfg.Blob.Endpoint)
		}
		fmt.Fprintf(out, "  Access key: %s\n", secret(cfg.Blob.AccessKeyID))
	case "azure":
		fmt.Fprintf(out, "  Account:     %s\n", cfg.Blob.Account)
		fmt.Fprintf(out, "  Container:   %s\n", cfg.Blob.Container)
		fmt.Fprintf(out, "  Account key: %s\n", secret(cfg.Blob.AccountKey))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Transfer:")
	fmt.Fprintf(out, "  Chunk size:     %d KiB\n", cfg.Transfer.ChunkSizeKiB)
	fmt.Fprintf(out, "  URL validity:   %d h\n", cfg.Transfer.URLValidityHours)
	fmt.Fprintf(out, "  Max concurrent: %d\n", cfg.Transfer.MaxConcurrent)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Tree:")
	fmt.Fprintf(out, "  Path keying:    %s\n", cfg.Paths.Keying)
	fmt.Fprintf(out, "  Cascade delete: %t\n", cfg.Tree.CascadeDelete)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Session:")
	fmt.Fprintf(out, "  Secret:     %s\n", secret(cfg.Session.Secret))
	fmt.Fprintf(out, "  Token path: %s\n", cfg.Session.TokenPath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy:")
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Metrics: %s\n", cfg.Metrics.Addr)
	}
}

// newConfigValidateCmd creates the 'config validate' command.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath())
		},
	}
}
