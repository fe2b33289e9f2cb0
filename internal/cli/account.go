package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/auth"
	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/util/sanitize"
)

func addAccountCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newPasswdCmd())
	rootCmd.AddCommand(newWhoamiCmd())
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Long: `Create an account. The password must be at least 6 characters long
and contain a letter and a digit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withApp(func(ctx context.Context, app *core.App) error {
				password, err := promptPassword(out, "Password: ")
				if err != nil {
					return err
				}
				confirm, err := promptPassword(out, "Confirm password: ")
				if err != nil {
					return err
				}

				user, err := app.Auth.Register(ctx, sanitize.Name(args[0]), password, confirm)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Registered %s\n", user.Username)
				fmt.Fprintln(out, "Log in with: driftbox login "+user.Username)
				return nil
			})
		},
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withApp(func(ctx context.Context, app *core.App) error {
				password, err := promptPassword(out, "Password: ")
				if err != nil {
					return err
				}

				session, err := app.Auth.Login(ctx, sanitize.Name(args[0]), password)
				if err != nil {
					return err
				}
				if err := auth.SaveToken(app.Config.Session.TokenPath, session.Token); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Logged in as %s (session valid until %s)\n",
					session.Username, session.ExpiresAt.Local().Format(time.DateTime))
				return nil
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := auth.RemoveToken(cfg.Session.TokenPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withApp(func(ctx context.Context, app *core.App) error {
				user, err := app.Auth.Resume(app.Config.Session.TokenPath)
				if errors.Is(err, auth.ErrNotLoggedIn) {
					return core.ErrNoSession
				}
				if err != nil {
					return err
				}

				current, err := promptPassword(out, "Current password: ")
				if err != nil {
					return err
				}
				next, err := promptPassword(out, "New password: ")
				if err != nil {
					return err
				}
				confirm, err := promptPassword(out, "Confirm new password: ")
				if err != nil {
					return err
				}

				if err := app.Auth.ChangePassword(ctx, user.Username, current, next, confirm); err != nil {
					return err
				}
				fmt.Fprintln(out, "✓ Password changed")
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:    %s\n", sess.User.Username)
				fmt.Fprintf(out, "Owner:   %s\n", sess.User.Owner)
				fmt.Fprintf(out, "Expires: %s\n", sess.User.ExpiresAt.Local().Format(time.DateTime))
				return nil
			})
		},
	}
}
