package gui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathutil"
	"github.com/driftbox/driftbox/internal/transfer"
	"github.com/driftbox/driftbox/internal/tree"
	"github.com/driftbox/driftbox/internal/util/sanitize"
	strutil "github.com/driftbox/driftbox/internal/util/strings"
)

// pumpInterval is how often the browser drains task events.
const pumpInterval = 100 * time.Millisecond

const parentChoice = ".. (parent folder)"

// Browser is the file tree view of one session. Every method runs on the
// fyne thread, which is the only goroutine that touches the controller.
type Browser struct {
	ctx     context.Context
	session *core.Session
	ctrl    *tree.Controller
	window  fyne.Window

	items  []models.Item
	active map[string]float64 // running task ID to last percent

	list       *widget.List
	breadcrumb *widget.Label
	backBtn    *widget.Button
	status     *StatusBar

	// confirm asks a yes/no question; tests replace it.
	confirm func(title, message string, answer func(bool))

	// OnLogout runs when the user logs out.
	OnLogout func()

	stop     chan struct{}
	stopOnce sync.Once
}

// NewBrowser creates a browser positioned at the controller's current folder.
func NewBrowser(ctx context.Context, session *core.Session, window fyne.Window) *Browser {
	b := &Browser{
		ctx:     ctx,
		session: session,
		ctrl:    session.Controller,
		window:  window,
		active:  make(map[string]float64),
		stop:    make(chan struct{}),
	}
	b.confirm = func(title, message string, answer func(bool)) {
		dialog.ShowConfirm(title, message, answer, b.window)
	}
	return b
}

// Build creates the browser layout.
func (b *Browser) Build() fyne.CanvasObject {
	b.breadcrumb = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	b.breadcrumb.Truncation = fyne.TextTruncateEllipsis
	b.backBtn = widget.NewButtonWithIcon("", theme.NavigateBackIcon(), b.back)
	homeBtn := widget.NewButtonWithIcon("", theme.HomeIcon(), b.home)

	b.list = widget.NewList(
		func() int { return len(b.items) },
		func() fyne.CanvasObject {
			return container.NewBorder(nil, nil,
				widget.NewIcon(theme.FolderIcon()),
				widget.NewLabel(""),
				widget.NewLabel(""))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < 0 || id >= len(b.items) {
				return
			}
			it := b.items[id]
			row := obj.(*fyne.Container)
			name := row.Objects[0].(*widget.Label)
			icon := row.Objects[1].(*widget.Icon)
			info := row.Objects[2].(*widget.Label)

			name.SetText(it.Name())
			if it.Kind == models.KindFolder {
				icon.SetResource(theme.FolderIcon())
				info.SetText("")
				return
			}
			icon.SetResource(theme.FileIcon())
			info.SetText(fileInfo(it.File))
		},
	)
	b.list.OnSelected = func(id widget.ListItemID) {
		if id >= 0 && id < len(b.items) {
			b.ctrl.Select(b.items[id].Ref())
		}
	}
	b.list.OnUnselected = func(widget.ListItemID) {
		b.ctrl.ClearSelection()
	}

	b.status = NewStatusBar()

	toolbar := container.NewHBox(
		widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), b.openSelected),
		widget.NewButtonWithIcon("New folder", theme.FolderNewIcon(), b.newFolderDialog),
		NewPrimaryButtonWithIcon("Upload", theme.UploadIcon(), b.uploadDialog),
		widget.NewButtonWithIcon("Rename", theme.DocumentCreateIcon(), b.renameDialog),
		widget.NewButtonWithIcon("Move", theme.ContentCutIcon(), b.moveDialog),
		widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), b.deleteSelected),
		widget.NewButtonWithIcon("Sync", theme.ViewRefreshIcon(), b.sync),
	)
	user := widget.NewLabel(b.session.User.Username)
	logoutBtn := widget.NewButtonWithIcon("Log out", theme.LogoutIcon(), func() {
		if b.OnLogout != nil {
			b.OnLogout()
		}
	})

	header := container.NewBorder(nil, nil,
		container.NewHBox(b.backBtn, homeBtn),
		container.NewHBox(user, logoutBtn),
		b.breadcrumb)
	top := container.NewVBox(header, toolbar, widget.NewSeparator())

	b.refresh()
	return container.NewBorder(top, b.status, nil, nil, b.list)
}

// Start begins draining task events on a ticker.
func (b *Browser) Start() {
	go func() {
		ticker := time.NewTicker(pumpInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fyne.Do(b.pump)
			case <-b.stop:
				return
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the event ticker. Safe to call more than once.
func (b *Browser) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *Browser) pump() {
	b.ctrl.Pump(b.onEvents)
}

func (b *Browser) onEvents(batch []*events.TaskEvent) {
	changed := false
	for _, ev := range batch {
		switch ev.EventType {
		case events.EventTaskPending, events.EventTaskRunning:
			b.active[ev.TaskID] = 0
		case events.EventTaskProgress:
			b.active[ev.TaskID] = ev.Percent
		case events.EventTaskStatus:
			b.status.SetProgress(ev.Message)
		case events.EventTaskSucceeded:
			delete(b.active, ev.TaskID)
			changed = true
			msg := ev.Message
			if msg == "" {
				msg = fmt.Sprintf("%s %s done", ev.Kind, ev.Target)
			}
			b.status.SetSuccess(msg)
		case events.EventTaskFailed:
			delete(b.active, ev.TaskID)
			changed = true
			b.status.SetError(fmt.Sprintf("%s %s failed: %s", ev.Kind, ev.Target, ev.Message))
			guiLogger.Warn().Err(ev.Err).Str("task", ev.TaskID).Msg("Task failed")
		}
	}
	b.showPercent()
	if changed {
		b.refresh()
	}
}

// showPercent shows the mean percent of running tasks.
func (b *Browser) showPercent() {
	if len(b.active) == 0 {
		b.status.SetPercent(-1)
		return
	}
	var sum float64
	for _, p := range b.active {
		sum += p
	}
	b.status.SetPercent(sum / float64(len(b.active)))
}

// Busy reports whether any dispatched task has not finished.
func (b *Browser) Busy() bool {
	return len(b.active) > 0 || len(b.ctrl.Tasks()) > 0
}

func (b *Browser) refresh() {
	items, err := b.ctrl.List(b.ctx, b.ctrl.Current())
	if err != nil {
		b.status.SetError("Failed to list folder: " + err.Error())
		guiLogger.Error().Err(err).Str("path", b.ctrl.Current().String()).Msg("List failed")
		return
	}
	b.items = items
	b.ctrl.ClearSelection()
	b.list.UnselectAll()
	b.list.Refresh()
	b.breadcrumb.SetText(b.ctrl.Breadcrumb())
	if b.ctrl.Current().IsRoot() {
		b.backBtn.Disable()
	} else {
		b.backBtn.Enable()
	}
}

// Navigation

func (b *Browser) back() {
	if b.ctrl.Back() {
		b.refresh()
	}
}

func (b *Browser) home() {
	b.ctrl.Home()
	b.refresh()
}

func (b *Browser) openSelected() {
	ref, ok := b.ctrl.Selected()
	if !ok {
		b.status.SetWarning("Select a folder or file first")
		return
	}
	if ref.Kind == models.KindFolder {
		b.openFolder(ref.Name)
		return
	}
	b.showFile(ref.Name)
}

func (b *Browser) openFolder(name string) {
	if _, err := b.ctrl.OpenFolder(b.ctx, name); err != nil {
		showError(b.window, err)
		return
	}
	b.refresh()
}

func (b *Browser) showFile(name string) {
	entry, err := b.ctrl.File(b.ctx, b.ctrl.Current(), name)
	if err != nil {
		showError(b.window, err)
		return
	}
	if !entry.HasBlob() {
		dialog.ShowInformation(entry.Name,
			fmt.Sprintf("Not synced yet.\nLocal origin: %s", entry.OriginPath), b.window)
		return
	}
	url, err := b.session.Fetcher.FreshURL(b.ctx, entry)
	if err != nil {
		showError(b.window, err)
		return
	}
	link := widget.NewEntry()
	link.SetText(url)
	copyBtn := widget.NewButtonWithIcon("Copy link", theme.ContentCopyIcon(), func() {
		b.window.Clipboard().SetContent(url)
		b.status.SetInfo("Link copied")
	})
	content := container.NewVBox(
		widget.NewLabel(fmt.Sprintf("%s, uploaded %s", strutil.FormatSize(entry.Size), strutil.FormatTime(entry.UploadedAt))),
		link,
		copyBtn,
	)
	dialog.ShowCustom(entry.Name, "Close", content, b.window)
}

// Folder creation

func (b *Browser) newFolderDialog() {
	entry := widget.NewEntry()
	entry.SetPlaceHolder("folder name")
	dialog.ShowForm("New folder", "Create", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Name", entry)},
		func(ok bool) {
			if ok {
				b.createFolder(entry.Text)
			}
		}, b.window)
}

func (b *Browser) createFolder(name string) {
	folder, err := b.ctrl.CreateFolder(b.ctx, b.ctrl.Current(), sanitize.Name(name))
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	b.status.SetSuccess("Created " + folder.Path().String())
	b.refresh()
}

// Upload

func (b *Browser) uploadDialog() {
	dialog.ShowFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			showError(b.window, err)
			return
		}
		if rc == nil {
			return
		}
		local := rc.URI().Path()
		rc.Close()
		b.upload(local)
	}, b.window)
}

// upload asks before storing under a suffixed name. The question is
// asynchronous, so the approved name is checked again at dispatch.
func (b *Browser) upload(picked string) {
	local, err := pathutil.ResolveAbsolutePath(picked)
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	cur := b.ctrl.Current()
	desired := filepath.Base(local)
	final, err := b.ctrl.Engine().Names().UniqueName(b.ctx, cur, desired)
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	if final == desired {
		b.dispatchUpload(local, cur, desired, final)
		return
	}
	b.confirm("Name already in use",
		fmt.Sprintf("%q already exists here. Upload as %q?", desired, final),
		func(ok bool) {
			if !ok {
				b.status.SetInfo("Upload cancelled")
				return
			}
			b.dispatchUpload(local, cur, desired, final)
		})
}

func (b *Browser) dispatchUpload(local string, p models.Path, desired, approved string) {
	task, err := b.ctrl.Upload(b.ctx, local, p, desired, func(_, final string) bool {
		return final == approved
	})
	if errors.Is(err, transfer.ErrDeclined) {
		b.status.SetWarning("The folder changed, try the upload again")
		return
	}
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	b.started(task)
}

// Rename

func (b *Browser) renameDialog() {
	ref, ok := b.ctrl.Selected()
	if !ok {
		b.status.SetWarning("Select something to rename")
		return
	}
	entry := widget.NewEntry()
	entry.SetText(ref.Name)
	dialog.ShowForm("Rename "+ref.Name, "Rename", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("New name", entry)},
		func(ok bool) {
			if ok {
				b.rename(ref, entry.Text)
			}
		}, b.window)
}

func (b *Browser) rename(ref models.Ref, newName string) {
	task, err := b.ctrl.Rename(b.ctx, b.ctrl.Current(), ref.Name, ref.Kind, sanitize.Name(newName))
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	b.started(task)
}

// Move

// moveTargets lists the folders a selected file can be moved into.
func (b *Browser) moveTargets() []string {
	var names []string
	if !b.ctrl.Current().IsRoot() {
		names = append(names, parentChoice)
	}
	for _, it := range b.items {
		if it.Kind == models.KindFolder {
			names = append(names, it.Name())
		}
	}
	return names
}

func (b *Browser) moveDialog() {
	ref, ok := b.ctrl.Selected()
	if !ok || ref.Kind != models.KindFile {
		b.status.SetWarning("Select a file to move")
		return
	}
	targets := b.moveTargets()
	if len(targets) == 0 {
		b.status.SetWarning("No folder to move into")
		return
	}
	choice := widget.NewSelect(targets, nil)
	choice.SetSelectedIndex(0)
	dialog.ShowForm("Move "+ref.Name, "Move", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Into", choice)},
		func(ok bool) {
			if ok {
				b.move(ref.Name, choice.Selected)
			}
		}, b.window)
}

func (b *Browser) move(fileName, target string) {
	cur := b.ctrl.Current()
	var (
		task transfer.Task
		err  error
	)
	if target == parentChoice {
		task, err = b.ctrl.MoveTo(b.ctx, cur, fileName, cur.Parent())
	} else {
		task, err = b.ctrl.Move(b.ctx, cur, fileName, target)
	}
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	b.started(task)
}

// Delete

func (b *Browser) deleteSelected() {
	ref, ok := b.ctrl.Selected()
	if !ok {
		b.status.SetWarning("Select something to delete")
		return
	}
	b.confirm("Delete "+ref.Name,
		fmt.Sprintf("Delete %s %q? This cannot be undone.", ref.Kind, ref.Name),
		func(ok bool) {
			if ok {
				b.delete(ref)
			}
		})
}

func (b *Browser) delete(ref models.Ref) {
	task, err := b.ctrl.Delete(b.ctx, b.ctrl.Current(), ref.Name, ref.Kind)
	if err != nil {
		b.status.SetError(err.Error())
		return
	}
	b.started(task)
}

// Sync

func (b *Browser) sync() {
	b.started(b.ctrl.Sync(b.ctx, b.ctrl.Current()))
}

func (b *Browser) started(task transfer.Task) {
	b.active[task.ID] = 0
	b.showPercent()
	b.status.SetProgress("Started " + task.Label())
}

func fileInfo(f *models.FileEntry) string {
	if !f.Synced {
		return strutil.FormatSize(f.Size) + "  (not synced)"
	}
	return strutil.FormatSize(f.Size) + "  " + strutil.FormatTime(f.UploadedAt)
}

func showError(window fyne.Window, err error) {
	guiLogger.Error().Err(err).Msg("GUI error")
	dialog.ShowError(err, window)
}
