// Package events carries task progress from background workers to the
// interactive thread.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftbox/driftbox/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventTaskPending   EventType = "task_pending"   // Task created, not yet running
	EventTaskRunning   EventType = "task_running"   // Worker picked the task up
	EventTaskProgress  EventType = "task_progress"  // Percent update
	EventTaskStatus    EventType = "task_status"    // Free-form status text
	EventTaskSucceeded EventType = "task_succeeded" // Terminal: success
	EventTaskFailed    EventType = "task_failed"    // Terminal: failure with Err
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("progress channel closed")

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// TaskEvent reports a change on one task.
type TaskEvent struct {
	BaseEvent
	TaskID  string
	Kind    string  // "upload", "rename", "move", "delete", "sync"
	Target  string  // Display name of what the task acts on
	Percent float64 // 0 to 100, progress events only
	Message string  // Status text
	Err     error   // Failure reason, EventTaskFailed only
}

// IsTerminal reports whether this is the last event the task will emit.
func (e *TaskEvent) IsTerminal() bool {
	return e.EventType == EventTaskSucceeded || e.EventType == EventTaskFailed
}

// NewTaskEvent stamps a task event with the current time.
func NewTaskEvent(t EventType, taskID, kind, target string) *TaskEvent {
	return &TaskEvent{
		BaseEvent: BaseEvent{EventType: t, Time: time.Now()},
		TaskID:    taskID,
		Kind:      kind,
		Target:    target,
	}
}

// ProgressChannel is a bounded, ordered queue between many producers and a
// single consumer. Producers block while the buffer is full; nothing is
// dropped. The consumer drains it from its own goroutine, typically on a
// timer tick, so every state change the consumer sees happens at poll time.
//
// Events from one producer goroutine are delivered in the order published.
// There is no ordering between producers.
type ProgressChannel struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once

	published atomic.Int64
	delivered atomic.Int64
}

// NewProgressChannel creates a channel with the given buffer size.
func NewProgressChannel(bufferSize int) *ProgressChannel {
	if bufferSize <= 0 {
		bufferSize = constants.ProgressBufferSize
	}
	if bufferSize > constants.ProgressMaxBuffer {
		bufferSize = constants.ProgressMaxBuffer
	}
	return &ProgressChannel{
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
	}
}

// Publish enqueues an event, blocking while the buffer is full.
// It returns ctx.Err() if ctx ends first, or ErrClosed after Close.
func (p *ProgressChannel) Publish(ctx context.Context, event Event) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.ch <- event:
		p.published.Add(1)
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain returns every event buffered at the time of the call without
// blocking. Events published while Drain runs are left for the next call,
// so a busy producer cannot keep the consumer inside Drain forever.
func (p *ProgressChannel) Drain() []Event {
	n := len(p.ch)
	if n == 0 {
		return nil
	}
	out := make([]Event, 0, n)
drain:
	for i := 0; i < n; i++ {
		select {
		case ev := <-p.ch:
			out = append(out, ev)
		default:
			break drain
		}
	}
	p.delivered.Add(int64(len(out)))
	return out
}

// Poll drains the channel every interval and hands each non-empty batch to
// handle. It runs on the caller's goroutine until ctx is done or the channel
// is closed, then performs one final drain.
func (p *ProgressChannel) Poll(ctx context.Context, interval time.Duration, handle func([]Event)) {
	if interval <= 0 {
		interval = constants.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if batch := p.Drain(); len(batch) > 0 {
				handle(batch)
			}
		case <-ctx.Done():
			if batch := p.Drain(); len(batch) > 0 {
				handle(batch)
			}
			return
		case <-p.done:
			if batch := p.Drain(); len(batch) > 0 {
				handle(batch)
			}
			return
		}
	}
}

// Close releases blocked producers. Buffered events can still be drained.
func (p *ProgressChannel) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// Len returns the number of buffered events.
func (p *ProgressChannel) Len() int {
	return len(p.ch)
}

// Cap returns the buffer size.
func (p *ProgressChannel) Cap() int {
	return cap(p.ch)
}

// Stats returns how many events were published and delivered so far.
func (p *ProgressChannel) Stats() (published, delivered int64) {
	return p.published.Load(), p.delivered.Load()
}
