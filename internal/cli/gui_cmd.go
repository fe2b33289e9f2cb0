package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/gui"
)

func newGUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop interface",
		Long: `Open the desktop file browser. If no session is stored, a login
screen is shown first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *core.App) error {
				return gui.Run(ctx, app)
			})
		},
	}
}
