package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/models"
)

// Task tests

func TestNewTask(t *testing.T) {
	task := newTask(KindUpload, models.Ref{Parent: models.Root(), Name: "test.dat", Kind: models.KindFile})

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Kind != KindUpload {
		t.Errorf("Expected KindUpload, got %v", task.Kind)
	}
	if task.State != TaskPending {
		t.Errorf("Expected TaskPending, got %v", task.State)
	}
	if task.Percent != 0 {
		t.Errorf("Expected percent 0, got %f", task.Percent)
	}
	if task.Label() != "upload test.dat" {
		t.Errorf("Unexpected label %q", task.Label())
	}

	other := newTask(KindUpload, task.Target)
	if other.ID == task.ID {
		t.Error("Task IDs must be unique")
	}
}

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskState
		ok       bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskPending, TaskFailed, true},
		{TaskPending, TaskSucceeded, false},
		{TaskRunning, TaskSucceeded, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskPending, false},
		{TaskSucceeded, TaskFailed, false},
		{TaskFailed, TaskRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			task := &Task{ID: "x", State: tt.from}
			err := task.transition(tt.to, time.Now())
			if (err == nil) != tt.ok {
				t.Errorf("transition error = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && task.State != tt.to {
				t.Errorf("State = %s, want %s", task.State, tt.to)
			}
			if !tt.ok && task.State != tt.from {
				t.Error("Rejected transition must not change state")
			}
		})
	}
}

func TestTaskTimestamps(t *testing.T) {
	task := &Task{ID: "x", State: TaskPending}
	start := time.Now()

	_ = task.transition(TaskRunning, start)
	if !task.StartedAt.Equal(start) {
		t.Error("StartedAt should be set on Running")
	}
	_ = task.transition(TaskSucceeded, start.Add(time.Second))
	if task.Duration() != time.Second {
		t.Errorf("Expected 1s duration, got %v", task.Duration())
	}
}

// Queue tests

func taskEvent(typ events.EventType, id string) *events.TaskEvent {
	return events.NewTaskEvent(typ, id, string(KindUpload), "a.txt")
}

func trackedQueue() (*Queue, *Task) {
	q := NewQueue()
	task := newTask(KindUpload, models.Ref{Parent: models.Root(), Name: "a.txt", Kind: models.KindFile})
	q.add(task)
	return q, task
}

func TestQueue_ApplyLifecycle(t *testing.T) {
	q, task := trackedQueue()

	progress := taskEvent(events.EventTaskProgress, task.ID)
	progress.Percent = 50
	status := taskEvent(events.EventTaskStatus, task.ID)
	status.Message = "Uploading a.txt"

	got := q.Apply([]events.Event{
		taskEvent(events.EventTaskPending, task.ID),
		taskEvent(events.EventTaskRunning, task.ID),
		status,
		progress,
	})
	if len(got) != 4 {
		t.Fatalf("Expected 4 task events back, got %d", len(got))
	}

	snap, ok := q.GetTask(task.ID)
	if !ok {
		t.Fatal("Task should be tracked")
	}
	if snap.State != TaskRunning || snap.Percent != 50 || snap.Status != "Uploading a.txt" {
		t.Errorf("Unexpected task after apply: %+v", snap)
	}

	q.Apply([]events.Event{taskEvent(events.EventTaskSucceeded, task.ID)})
	snap, _ = q.GetTask(task.ID)
	if snap.State != TaskSucceeded || snap.Percent != 100 {
		t.Errorf("Expected succeeded at 100%%, got %s at %f", snap.State, snap.Percent)
	}
}

func TestQueue_ApplyFailureKeepsReason(t *testing.T) {
	q, task := trackedQueue()
	reason := errors.New("bucket unavailable")

	failed := taskEvent(events.EventTaskFailed, task.ID)
	failed.Err = reason
	q.Apply([]events.Event{taskEvent(events.EventTaskRunning, task.ID), failed})

	snap, _ := q.GetTask(task.ID)
	if snap.State != TaskFailed || !errors.Is(snap.Err, reason) {
		t.Errorf("Expected failed with reason, got %s, %v", snap.State, snap.Err)
	}

	// A terminal task ignores anything that arrives later.
	q.Apply([]events.Event{taskEvent(events.EventTaskSucceeded, task.ID)})
	snap, _ = q.GetTask(task.ID)
	if snap.State != TaskFailed {
		t.Errorf("Terminal state changed to %s", snap.State)
	}
}

func TestQueue_ApplyIgnoresUnknownTasks(t *testing.T) {
	q, task := trackedQueue()

	got := q.Apply([]events.Event{
		taskEvent(events.EventTaskRunning, "someone-else"),
		events.BaseEvent{EventType: events.EventTaskStatus, Time: time.Now()},
	})
	if len(got) != 1 {
		t.Errorf("Expected only the task event back, got %d", len(got))
	}
	snap, _ := q.GetTask(task.ID)
	if snap.State != TaskPending {
		t.Errorf("Unrelated events changed the task: %s", snap.State)
	}
}

func TestQueue_Acknowledge(t *testing.T) {
	q, task := trackedQueue()

	if err := q.Acknowledge(task.ID); !errors.Is(err, ErrTaskNotDone) {
		t.Errorf("Expected ErrTaskNotDone, got %v", err)
	}

	q.Apply([]events.Event{
		taskEvent(events.EventTaskRunning, task.ID),
		taskEvent(events.EventTaskSucceeded, task.ID),
	})
	if err := q.Acknowledge(task.ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if _, ok := q.GetTask(task.ID); ok {
		t.Error("Acknowledged task should be gone")
	}
	if err := q.Acknowledge(task.ID); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Expected ErrUnknownTask, got %v", err)
	}
}

func TestQueue_StatsAndClear(t *testing.T) {
	q := NewQueue()
	var ids []string
	for i := 0; i < 4; i++ {
		task := newTask(KindDelete, models.Ref{Name: "x"})
		q.add(task)
		ids = append(ids, task.ID)
	}

	q.Apply([]events.Event{
		taskEvent(events.EventTaskRunning, ids[1]),
		taskEvent(events.EventTaskRunning, ids[2]),
		taskEvent(events.EventTaskSucceeded, ids[2]),
		taskEvent(events.EventTaskFailed, ids[3]),
	})

	stats := q.GetStats()
	if stats.Pending != 1 || stats.Running != 1 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.Total() != 4 || stats.Active() != 2 {
		t.Errorf("Unexpected totals %d/%d", stats.Total(), stats.Active())
	}

	q.ClearCompleted()
	tasks := q.GetTasks()
	if len(tasks) != 2 || tasks[0].ID != ids[0] || tasks[1].ID != ids[1] {
		t.Errorf("ClearCompleted should keep unfinished tasks in order, got %+v", tasks)
	}
}

func TestQueue_GetTasksReturnsCopies(t *testing.T) {
	q, task := trackedQueue()

	tasks := q.GetTasks()
	tasks[0].State = TaskSucceeded

	snap, _ := q.GetTask(task.ID)
	if snap.State != TaskPending {
		t.Error("Mutating a returned task must not affect the queue")
	}
}
