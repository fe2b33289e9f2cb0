// Package gui provides the desktop interface for driftbox.
package gui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"

	"github.com/driftbox/driftbox/internal/auth"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/logging"
)

var guiLogger = logging.NewNopLogger()

// Run opens the main window and blocks until it is closed. It shows the
// login view when no stored session is valid.
func Run(ctx context.Context, a *core.App) error {
	guiLogger = logging.NewLogger("gui")

	// In GUI mode only warnings reach the console unless DRIFTBOX_DEBUG is set.
	if os.Getenv("DRIFTBOX_DEBUG") != "" {
		logging.SetGlobalLevel(zerolog.DebugLevel)
		guiLogger.Info().Msg("Debug logging enabled via DRIFTBOX_DEBUG")
	} else {
		logging.SetGlobalLevel(zerolog.WarnLevel)
	}

	if runtime.GOOS == "linux" {
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return fmt.Errorf("GUI mode requires a display. No display detected.\n" +
				"DISPLAY and WAYLAND_DISPLAY are not set.\n" +
				"Use the driftbox CLI commands instead")
		}
	}

	fyneApp := app.NewWithID(constants.AppID)
	fyneApp.Settings().SetTheme(&driftTheme{})

	window := fyneApp.NewWindow("driftbox")
	window.SetMaster()

	ui := NewUI(ctx, a, window)
	ui.Start()

	window.Resize(fyne.NewSize(900, 600))
	window.CenterOnScreen()
	window.SetOnClosed(ui.Stop)
	window.ShowAndRun()
	return nil
}

// UI switches the main window between the login view and the browser.
type UI struct {
	ctx    context.Context
	app    *core.App
	window fyne.Window

	session *core.Session
	browser *Browser
}

// NewUI creates a UI for window. Nothing is shown until Start.
func NewUI(ctx context.Context, a *core.App, window fyne.Window) *UI {
	return &UI{ctx: ctx, app: a, window: window}
}

// Start resumes the stored session, or shows the login view.
func (ui *UI) Start() {
	session, err := ui.app.Resume()
	if err != nil {
		if !errors.Is(err, core.ErrNoSession) {
			guiLogger.Warn().Err(err).Msg("Stored session rejected")
		}
		ui.showLogin()
		return
	}
	ui.showBrowser(session)
}

// Stop closes the open session, if any.
func (ui *UI) Stop() {
	ui.closeSession()
}

func (ui *UI) showLogin() {
	view := NewLoginView(ui.ctx, ui.app.Auth, ui.window, func(s *auth.Session) {
		if err := auth.SaveToken(ui.app.Config.Session.TokenPath, s.Token); err != nil {
			guiLogger.Warn().Err(err).Msg("Failed to store session token")
		}
		session, err := ui.app.NewSession(s)
		if err != nil {
			showError(ui.window, err)
			return
		}
		ui.showBrowser(session)
	})
	ui.window.SetContent(view.Build())
}

func (ui *UI) showBrowser(session *core.Session) {
	ui.session = session
	ui.browser = NewBrowser(ui.ctx, session, ui.window)
	ui.browser.OnLogout = ui.logout
	ui.window.SetContent(ui.browser.Build())
	ui.browser.Start()

	guiLogger.Info().Str("user", session.User.Username).Msg("Session opened")
}

func (ui *UI) logout() {
	if err := auth.RemoveToken(ui.app.Config.Session.TokenPath); err != nil {
		guiLogger.Warn().Err(err).Msg("Failed to remove session token")
	}
	ui.closeSession()
	ui.showLogin()
}

func (ui *UI) closeSession() {
	if ui.browser != nil {
		ui.browser.Stop()
		ui.browser = nil
	}
	if ui.session != nil {
		ui.session.Close()
		ui.session = nil
	}
}
