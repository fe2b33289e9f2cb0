// Package cli provides the command-line interface for driftbox.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/config"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metrics"
	"github.com/driftbox/driftbox/internal/version"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	debug       bool
	metricsAddr string

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "driftbox - hierarchical file storage over a document store and a blob store",
		Long: `driftbox ` + version.Version + ` - Built: ` + version.BuildTime + `
Stores a folder tree in a metadata store and file bytes in a blob store.

Every change (upload, rename, move, delete, sync) runs as a background task;
the command waits for it and draws its progress.

Run 'driftbox gui' for the desktop interface.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (.yaml/.yml for YAML, INI otherwise)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate shell completion scripts for driftbox.

QUICK TEST (current session only):
  source <(driftbox completion bash)
  source <(driftbox completion zsh)
  driftbox completion fish | source`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletion(out)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, no new tasks will be started.\n", sig)
				fmt.Fprintf(os.Stderr, "Running tasks finish in the background before exit.\n\n")
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	addAccountCommands(rootCmd)
	addFileCommands(rootCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGUICmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context. It is cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig reads the configuration, generating and persisting secrets on
// first use.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	changed, err := cfg.EnsureSecrets()
	if err != nil {
		return nil, err
	}
	if changed {
		if err := config.Save(cfg, cfgFile); err != nil {
			return nil, fmt.Errorf("failed to persist generated secrets: %w", err)
		}
		GetLogger().Debug().Msg("Generated session and signing secrets")
	}
	return cfg, nil
}

// openApp loads the configuration, connects the backends and starts the
// metrics endpoint when one is configured.
func openApp(ctx context.Context) (*core.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	app, err := core.Open(ctx, cfg, GetLogger())
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				GetLogger().Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint stopped")
			}
		}()
	}
	return app, nil
}

// withApp runs fn against a freshly opened App.
func withApp(fn func(ctx context.Context, app *core.App) error) error {
	ctx := GetContext()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// withSession runs fn for the logged-in user.
func withSession(fn func(ctx context.Context, app *core.App, sess *core.Session) error) error {
	return withApp(func(ctx context.Context, app *core.App) error {
		sess, err := app.Resume()
		if err != nil {
			return err
		}
		defer sess.Close()
		return fn(ctx, app, sess)
	})
}
