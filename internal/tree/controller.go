// Package tree is the public surface of the file store: listing, folder
// creation, navigation, and dispatch of transfer tasks. A Controller
// belongs to the interactive goroutine and is not safe for concurrent use.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/transfer"
	"github.com/driftbox/driftbox/internal/validation"
)

// ErrNotFolder is returned when navigating into a name that is not a folder.
var ErrNotFolder = errors.New("no such folder")

// Controller ties the metadata store, the path resolver and the transfer
// engine together and owns the navigation state.
type Controller struct {
	store  metadata.Store
	paths  *pathresolve.Resolver
	engine *transfer.Engine
	logger *logging.Logger
	now    func() time.Time

	nav       *Navigation
	selection Selection
}

// New creates a Controller positioned at root.
func New(store metadata.Store, paths *pathresolve.Resolver, engine *transfer.Engine, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Controller{
		store:  store,
		paths:  paths,
		engine: engine,
		logger: logger.Component("tree"),
		now:    time.Now,
		nav:    NewNavigation(),
	}
}

// Engine returns the transfer engine tasks are dispatched to.
func (c *Controller) Engine() *transfer.Engine {
	return c.engine
}

// Owner returns the owner whose tree this is.
func (c *Controller) Owner() string {
	return c.paths.Owner()
}

// List returns the folders then the files directly in p, each in the
// backend's order. It only reads.
func (c *Controller) List(ctx context.Context, p models.Path) ([]models.Item, error) {
	refs := c.paths.Resolve(p)

	folders, err := c.store.Stream(ctx, refs.Folders)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders in %s: %w", p, err)
	}
	files, err := c.store.Stream(ctx, refs.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", p, err)
	}

	items := make([]models.Item, 0, len(folders)+len(files))
	for _, s := range folders {
		items = append(items, models.FolderItem(models.FolderFromFields(p, s.ID, s.Data)))
	}
	for _, s := range files {
		items = append(items, models.FileItem(models.FileFromFields(p, s.ID, s.Data)))
	}
	return items, nil
}

// SortedByName returns a copy of items with folders first and each kind
// ordered by name.
func SortedByName(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == models.KindFolder
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// File reads one file entry.
func (c *Controller) File(ctx context.Context, p models.Path, name string) (*models.FileEntry, error) {
	doc, err := c.store.Get(ctx, c.paths.FileDoc(p, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in %s: %w", name, p, err)
	}
	return models.FileFromFields(p, name, doc), nil
}

// FolderExists reports whether p is root or has a folder record.
func (c *Controller) FolderExists(ctx context.Context, p models.Path) (bool, error) {
	if p.IsRoot() {
		return true, nil
	}
	return c.store.Exists(ctx, c.paths.FolderDoc(p.Parent(), p.Last()))
}

// CreateFolder adds folder name in p. An existing folder of that name is a
// transfer.ErrConflict.
func (c *Controller) CreateFolder(ctx context.Context, p models.Path, name string) (*models.Folder, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}

	doc := c.paths.FolderDoc(p, name)
	exists, err := c.store.Exists(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to check folder %s: %w", name, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: folder %s in %s", transfer.ErrConflict, name, p)
	}

	folder := &models.Folder{Parent: p, Name: name, CreatedAt: c.now()}
	if err := c.store.Set(ctx, doc, metadata.Document(models.FolderFields(folder))); err != nil {
		return nil, fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	c.logger.Info().Str("path", p.String()).Str("name", name).Msg("Folder created")
	return folder, nil
}

// Navigation

// Current returns the folder the user is in.
func (c *Controller) Current() models.Path {
	return c.nav.Current()
}

// Breadcrumb renders the current folder as "Home > a > b".
func (c *Controller) Breadcrumb() string {
	return c.nav.Current().Breadcrumb()
}

// OpenFolder enters the child folder name of the current folder.
func (c *Controller) OpenFolder(ctx context.Context, name string) (models.Path, error) {
	target := c.nav.Current().Child(name)
	ok, err := c.FolderExists(ctx, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, target)
	}
	c.selection.Clear()
	return c.nav.Push(name), nil
}

// Back returns to the previous folder. It reports false at root.
func (c *Controller) Back() bool {
	if !c.nav.Pop() {
		return false
	}
	c.selection.Clear()
	return true
}

// Home returns to root.
func (c *Controller) Home() {
	c.nav.Reset()
	c.selection.Clear()
}

// Select records the selected item.
func (c *Controller) Select(ref models.Ref) {
	c.selection.Select(ref)
}

// ClearSelection drops the selected item.
func (c *Controller) ClearSelection() {
	c.selection.Clear()
}

// Selected returns the selected item.
func (c *Controller) Selected() (models.Ref, bool) {
	return c.selection.Get()
}

// Transfer dispatch

// Upload dispatches an upload of localFile into p.
func (c *Controller) Upload(ctx context.Context, localFile string, p models.Path, name string, confirm transfer.ConfirmFunc) (transfer.Task, error) {
	return c.engine.Upload(ctx, localFile, p, name, confirm)
}

// Track records localFile in p without uploading it.
func (c *Controller) Track(ctx context.Context, localFile string, p models.Path, name string) (*models.FileEntry, error) {
	return c.engine.Track(ctx, localFile, p, name)
}

// Rename dispatches a rename within p.
func (c *Controller) Rename(ctx context.Context, p models.Path, oldName string, kind models.Kind, newName string) (transfer.Task, error) {
	return c.engine.Rename(ctx, p, oldName, kind, newName)
}

// Delete dispatches removal of an item in p.
func (c *Controller) Delete(ctx context.Context, p models.Path, name string, kind models.Kind) (transfer.Task, error) {
	return c.engine.Delete(ctx, p, name, kind)
}

// Move dispatches a move of fileName from p into its subfolder toFolder.
func (c *Controller) Move(ctx context.Context, p models.Path, fileName, toFolder string) (transfer.Task, error) {
	return c.engine.Move(ctx, fileName, p, toFolder)
}

// MoveTo dispatches a move of fileName from p into folder to.
func (c *Controller) MoveTo(ctx context.Context, p models.Path, fileName string, to models.Path) (transfer.Task, error) {
	return c.engine.MoveTo(ctx, fileName, p, to)
}

// Sync dispatches a sync of the unsynced entries in p.
func (c *Controller) Sync(ctx context.Context, p models.Path) transfer.Task {
	return c.engine.SyncPath(ctx, p)
}

// Progress

// Pump drains the progress channel once, applies the batch to the task
// queue and hands it to handle. Tasks whose terminal event is in the batch are
// acknowledged after handle returns, so handle still sees them in the
// queue. Call it from the interactive goroutine only.
func (c *Controller) Pump(handle func([]*events.TaskEvent)) {
	batch := c.engine.Progress().Drain()
	if len(batch) == 0 {
		return
	}
	c.dispatchBatch(batch, handle)
}

// Poll pumps on every tick until ctx ends, running handle on the caller's
// goroutine.
func (c *Controller) Poll(ctx context.Context, interval time.Duration, handle func([]*events.TaskEvent)) {
	c.engine.Progress().Poll(ctx, interval, func(batch []events.Event) {
		c.dispatchBatch(batch, handle)
	})
}

func (c *Controller) dispatchBatch(batch []events.Event, handle func([]*events.TaskEvent)) {
	evs := c.engine.Queue().Apply(batch)
	if handle != nil {
		handle(evs)
	}
	for _, ev := range evs {
		if ev.IsTerminal() {
			if err := c.engine.Queue().Acknowledge(ev.TaskID); err != nil {
				c.logger.Debug().Err(err).Str("task", ev.TaskID).Msg("Acknowledge skipped")
			}
		}
	}
}

// Tasks returns the tasks that have not been acknowledged yet.
func (c *Controller) Tasks() []transfer.Task {
	return c.engine.Queue().GetTasks()
}
