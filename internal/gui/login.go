package gui

import (
	"context"
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/driftbox/driftbox/internal/auth"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/util/sanitize"
)

// LoginView collects credentials for login or registration.
type LoginView struct {
	ctx      context.Context
	auth     *auth.Service
	window   fyne.Window
	onLogin  func(*auth.Session)
	username *widget.Entry
	password *widget.Entry
	confirm  *widget.Entry
	status   *StatusBar

	loginBtn    *widget.Button
	registerBtn *widget.Button
}

// NewLoginView creates a login view. onLogin runs on the fyne thread after
// a successful login or registration.
func NewLoginView(ctx context.Context, svc *auth.Service, window fyne.Window, onLogin func(*auth.Session)) *LoginView {
	v := &LoginView{
		ctx:      ctx,
		auth:     svc,
		window:   window,
		onLogin:  onLogin,
		username: widget.NewEntry(),
		password: widget.NewPasswordEntry(),
		confirm:  widget.NewPasswordEntry(),
		status:   NewStatusBar(),
	}
	v.username.SetPlaceHolder("username")
	v.password.SetPlaceHolder("password")
	v.confirm.SetPlaceHolder("repeat password to register")
	v.password.OnSubmitted = func(string) { v.login() }
	return v
}

// Build creates the view layout.
func (v *LoginView) Build() fyne.CanvasObject {
	v.loginBtn = NewPrimaryButtonWithIcon("Log in", theme.LoginIcon(), v.login)
	v.registerBtn = widget.NewButtonWithIcon("Register", theme.AccountIcon(), v.register)

	form := widget.NewForm(
		widget.NewFormItem("Username", v.username),
		widget.NewFormItem("Password", v.password),
		widget.NewFormItem("Confirm", v.confirm),
	)
	title := widget.NewLabelWithStyle("driftbox", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})

	box := container.NewVBox(
		title,
		VerticalSpacer(8),
		form,
		container.NewHBox(v.loginBtn, v.registerBtn),
	)
	card := container.NewGridWrap(fyne.NewSize(380, box.MinSize().Height), box)
	return container.NewBorder(nil, v.status, nil, nil, container.NewCenter(card))
}

func (v *LoginView) login() {
	username, password := sanitize.Name(v.username.Text), v.password.Text
	v.run("Logging in...", func() (*auth.Session, error) {
		return v.auth.Login(v.ctx, username, password)
	})
}

func (v *LoginView) register() {
	username, password, confirm := sanitize.Name(v.username.Text), v.password.Text, v.confirm.Text
	v.run("Creating account...", func() (*auth.Session, error) {
		if _, err := v.auth.Register(v.ctx, username, password, confirm); err != nil {
			return nil, err
		}
		return v.auth.Login(v.ctx, username, password)
	})
}

// run hashes off the fyne thread and reports back through fyne.Do.
func (v *LoginView) run(message string, fn func() (*auth.Session, error)) {
	v.setBusy(true)
	v.status.SetProgress(message)

	go func() {
		session, err := fn()
		fyne.Do(func() {
			v.setBusy(false)
			if err != nil {
				v.status.SetError(loginMessage(err))
				return
			}
			v.status.SetSuccess("Welcome, " + session.Username)
			v.onLogin(session)
		})
	}()
}

func (v *LoginView) setBusy(busy bool) {
	for _, b := range []*widget.Button{v.loginBtn, v.registerBtn} {
		if b == nil {
			continue
		}
		if busy {
			b.Disable()
		} else {
			b.Enable()
		}
	}
}

func loginMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Unknown username or wrong password"
	case errors.Is(err, auth.ErrUserExists):
		return "That username is taken"
	case errors.Is(err, auth.ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, auth.ErrWeakPassword):
		return fmt.Sprintf("Password needs at least %d characters with a letter and a digit", constants.MinPasswordLength)
	default:
		return err.Error()
	}
}
