package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metrics"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/naming"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/util/buffers"
)

// Errors reported before a task is dispatched.
var (
	ErrConflict     = errors.New("name already exists")
	ErrDeclined     = errors.New("upload declined")
	ErrSameName     = errors.New("new name equals current name")
	ErrSameFolder   = errors.New("source and destination are the same folder")
	ErrNoSuchFolder = errors.New("folder does not exist")
	ErrLocalFile    = errors.New("local file unavailable")
)

// ConfirmFunc is asked before dispatching an upload whose name had to be
// changed to avoid a collision. Returning false cancels the upload.
type ConfirmFunc func(desired, final string) bool

// Options configures an Engine. Zero values take the package defaults.
type Options struct {
	ChunkSize     int           // Bytes read and pushed per chunk
	URLValidity   time.Duration // Lifetime of issued download URLs
	MaxConcurrent int           // Tasks allowed in Running at once
	CascadeDelete bool          // Folder delete also removes its contents
	Logger        *logging.Logger
}

// Engine dispatches transfer tasks. Every exported operation validates its
// input and probes for conflicts on the calling goroutine, then hands the
// I/O to a worker goroutine. Workers only talk back through the
// ProgressChannel.
type Engine struct {
	store    metadata.Store
	blobs    blob.Store
	paths    *pathresolve.Resolver
	names    *naming.Resolver
	progress *events.ProgressChannel
	queue    *Queue
	logger   *logging.Logger

	buffers  *buffers.Pool
	validity time.Duration
	cascade  bool

	slots chan struct{}
	wg    sync.WaitGroup
	now   func() time.Time
}

// New creates an Engine over the given stores.
func New(store metadata.Store, blobs blob.Store, paths *pathresolve.Resolver, progress *events.ProgressChannel, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = constants.ChunkSize
	}
	if opts.URLValidity <= 0 {
		opts.URLValidity = constants.SignedURLValidity
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &Engine{
		store:    store,
		blobs:    blobs,
		paths:    paths,
		names:    naming.New(store, paths),
		progress: progress,
		queue:    NewQueue(),
		logger:   opts.Logger.Component("transfer"),
		buffers:  buffers.NewPool(opts.ChunkSize),
		validity: opts.URLValidity,
		cascade:  opts.CascadeDelete,
		slots:    make(chan struct{}, opts.MaxConcurrent),
		now:      time.Now,
	}
}

// Queue returns the task tracker the interactive goroutine applies drained
// events to.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Progress returns the channel workers publish to.
func (e *Engine) Progress() *events.ProgressChannel {
	return e.progress
}

// Names returns the conflict resolver the engine uses for uploads.
func (e *Engine) Names() *naming.Resolver {
	return e.names
}

// Wait blocks until every dispatched worker has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// workFunc is the body of a task. It runs on a worker goroutine.
type workFunc func(ctx context.Context, r *reporter) error

// dispatch registers a Pending task and starts its worker. The worker
// context keeps the caller's values but not its cancellation: a dispatched
// task runs to completion or failure.
func (e *Engine) dispatch(ctx context.Context, kind TaskKind, target models.Ref, fn workFunc) Task {
	t := newTask(kind, target)
	snapshot := *t
	e.queue.add(t)

	e.wg.Add(1)
	go e.run(context.WithoutCancel(ctx), snapshot, fn)

	e.logger.Debug().
		Str("task", snapshot.ID).
		Str("kind", string(kind)).
		Str("target", target.String()).
		Msg("Task dispatched")
	return snapshot
}

func (e *Engine) run(ctx context.Context, t Task, fn workFunc) {
	defer e.wg.Done()

	r := &reporter{e: e, task: t}
	r.emit(events.EventTaskPending, nil)

	e.slots <- struct{}{}
	defer func() { <-e.slots }()

	r.emit(events.EventTaskRunning, nil)
	metrics.TaskStarted()
	start := time.Now()

	err := safeRun(ctx, r, fn)
	d := time.Since(start)

	if err != nil {
		metrics.TaskFinished(string(t.Kind), "failed", d)
		e.logger.Error().Err(err).
			Str("task", t.ID).
			Str("kind", string(t.Kind)).
			Str("target", t.Target.String()).
			Msg("Task failed")
		r.emit(events.EventTaskFailed, func(ev *events.TaskEvent) {
			ev.Err = err
			ev.Message = err.Error()
		})
		return
	}

	metrics.TaskFinished(string(t.Kind), "succeeded", d)
	e.logger.Info().
		Str("task", t.ID).
		Str("kind", string(t.Kind)).
		Str("target", t.Target.String()).
		Dur("took", d).
		Msg("Task succeeded")
	r.emit(events.EventTaskSucceeded, func(ev *events.TaskEvent) {
		ev.Percent = 100
		ev.Message = r.summary
	})
}

// safeRun turns a worker panic into a task failure so the interactive
// goroutine still sees a terminal event.
func safeRun(ctx context.Context, r *reporter, fn workFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, r)
}

// reporter publishes one task's events. It is used from that task's worker
// goroutine only, which keeps the task's events in emission order.
type reporter struct {
	e       *Engine
	task    Task
	summary string // message carried by the Succeeded event
}

func (r *reporter) emit(t events.EventType, fill func(*events.TaskEvent)) {
	ev := events.NewTaskEvent(t, r.task.ID, string(r.task.Kind), r.task.Target.Name)
	if fill != nil {
		fill(ev)
	}
	// Background: a full channel blocks until the consumer drains it or the
	// channel is closed. Never dropped.
	if err := r.e.progress.Publish(context.Background(), ev); err != nil {
		r.e.logger.Debug().Err(err).Str("task", r.task.ID).Str("event", string(t)).Msg("Event not delivered")
	}
}

func (r *reporter) progress(percent float64) {
	r.emit(events.EventTaskProgress, func(ev *events.TaskEvent) {
		ev.Percent = percent
	})
}

func (r *reporter) status(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.emit(events.EventTaskStatus, func(ev *events.TaskEvent) {
		ev.Message = msg
	})
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
