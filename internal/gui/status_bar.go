package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// StatusLevel selects the status bar icon.
type StatusLevel int

const (
	StatusInfo StatusLevel = iota
	StatusSuccess
	StatusWarning
	StatusError
	StatusProgress
)

// StatusBar shows a status line with a level icon and a progress bar for
// running tasks. Its methods must run on the fyne thread.
type StatusBar struct {
	widget.BaseWidget

	level   StatusLevel
	message string

	icon     *widget.Icon
	label    *widget.Label
	spinner  *widget.Activity
	progress *widget.ProgressBar
}

// NewStatusBar creates a status bar reading "Ready".
func NewStatusBar() *StatusBar {
	sb := &StatusBar{level: StatusInfo, message: "Ready"}
	sb.label = widget.NewLabel("Ready")
	sb.label.TextStyle = fyne.TextStyle{Italic: true}
	sb.label.Truncation = fyne.TextTruncateEllipsis
	sb.icon = widget.NewIcon(theme.InfoIcon())
	sb.spinner = widget.NewActivity()
	sb.spinner.Hide()
	sb.progress = widget.NewProgressBar()
	sb.progress.Max = 100
	sb.progress.Hide()
	sb.ExtendBaseWidget(sb)
	return sb
}

// SetStatus updates the message and level.
func (sb *StatusBar) SetStatus(message string, level StatusLevel) {
	sb.level = level
	sb.message = message

	sb.label.SetText(message)
	sb.spinner.Stop()
	sb.spinner.Hide()
	sb.icon.Show()

	switch level {
	case StatusInfo:
		sb.icon.SetResource(theme.InfoIcon())
	case StatusSuccess:
		sb.icon.SetResource(theme.ConfirmIcon())
	case StatusWarning:
		sb.icon.SetResource(theme.WarningIcon())
	case StatusError:
		sb.icon.SetResource(theme.ErrorIcon())
	case StatusProgress:
		sb.icon.Hide()
		sb.spinner.Show()
		sb.spinner.Start()
	}
}

func (sb *StatusBar) SetInfo(message string)     { sb.SetStatus(message, StatusInfo) }
func (sb *StatusBar) SetSuccess(message string)  { sb.SetStatus(message, StatusSuccess) }
func (sb *StatusBar) SetWarning(message string)  { sb.SetStatus(message, StatusWarning) }
func (sb *StatusBar) SetError(message string)    { sb.SetStatus(message, StatusError) }
func (sb *StatusBar) SetProgress(message string) { sb.SetStatus(message, StatusProgress) }

// SetPercent shows the progress bar at percent; a negative value hides it.
func (sb *StatusBar) SetPercent(percent float64) {
	if percent < 0 {
		sb.progress.Hide()
		return
	}
	sb.progress.SetValue(percent)
	sb.progress.Show()
}

// Message returns the current status message.
func (sb *StatusBar) Message() string {
	return sb.message
}

// Level returns the current status level.
func (sb *StatusBar) Level() StatusLevel {
	return sb.level
}

// Percent returns the progress bar value, or -1 when hidden.
func (sb *StatusBar) Percent() float64 {
	if !sb.progress.Visible() {
		return -1
	}
	return sb.progress.Value
}

// CreateRenderer implements fyne.Widget
func (sb *StatusBar) CreateRenderer() fyne.WidgetRenderer {
	bar := container.NewGridWrap(fyne.NewSize(180, sb.progress.MinSize().Height), sb.progress)
	content := container.NewBorder(nil, nil, container.NewHBox(sb.icon, sb.spinner), bar, sb.label)
	return widget.NewSimpleRenderer(content)
}
