// Package transfer runs upload, rename, move, delete and sync operations as
// background tasks and reports their progress through an events.ProgressChannel.
package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/internal/models"
)

// TaskKind is the operation a task performs.
type TaskKind string

const (
	KindUpload TaskKind = "upload"
	KindRename TaskKind = "rename"
	KindMove   TaskKind = "move"
	KindDelete TaskKind = "delete"
	KindSync   TaskKind = "sync"
)

// TaskState represents the current state of a task.
type TaskState string

const (
	TaskPending   TaskState = "pending"   // Dispatched, waiting for a worker slot
	TaskRunning   TaskState = "running"   // Worker is executing
	TaskSucceeded TaskState = "succeeded" // Terminal: success
	TaskFailed    TaskState = "failed"    // Terminal: failure with Err
)

// IsTerminal reports whether no further transition is possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// transitions lists the allowed moves of the task state machine.
var transitions = map[TaskState][]TaskState{
	TaskPending: {TaskRunning, TaskFailed},
	TaskRunning: {TaskSucceeded, TaskFailed},
}

func canTransition(from, to TaskState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is the interactive goroutine's view of one dispatched operation.
// Values returned by Engine and Queue are copies.
type Task struct {
	ID     string     // UUID token
	Kind   TaskKind   // Operation
	Target models.Ref // Item the task acts on

	State   TaskState
	Percent float64 // 0 to 100
	Status  string  // Last status text
	Err     error   // Failure reason when State is TaskFailed

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func newTask(kind TaskKind, target models.Ref) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		State:     TaskPending,
		CreatedAt: time.Now(),
	}
}

// transition moves the task to state at time now.
func (t *Task) transition(to TaskState, now time.Time) error {
	if t.State == to {
		return nil
	}
	if !canTransition(t.State, to) {
		return fmt.Errorf("task %s: invalid transition %s -> %s", t.ID, t.State, to)
	}
	t.State = to
	switch to {
	case TaskRunning:
		t.StartedAt = now
	case TaskSucceeded, TaskFailed:
		t.FinishedAt = now
	}
	return nil
}

// IsTerminal reports whether the task has finished.
func (t Task) IsTerminal() bool {
	return t.State.IsTerminal()
}

// Duration returns how long the task ran, or zero if it never started.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.FinishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Label is the display name of the task, e.g. "upload report.pdf".
func (t Task) Label() string {
	return string(t.Kind) + " " + t.Target.Name
}
