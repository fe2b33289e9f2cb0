package transfer

import (
	"errors"
	"sync"

	"github.com/driftbox/driftbox/internal/events"
)

// Errors returned by Queue.Acknowledge.
var (
	ErrUnknownTask = errors.New("task not found")
	ErrTaskNotDone = errors.New("task has not finished")
)

// QueueStats holds statistics about the tracked tasks.
type QueueStats struct {
	Pending   int
	Running   int
	Succeeded int
	Failed    int
}

// Total returns the number of tracked tasks.
func (s QueueStats) Total() int {
	return s.Pending + s.Running + s.Succeeded + s.Failed
}

// Active returns the number of tasks that have not finished.
func (s QueueStats) Active() int {
	return s.Pending + s.Running
}

// Queue is the interactive goroutine's record of dispatched tasks.
//
// Workers never touch it. The engine registers a task at dispatch, the
// interactive goroutine feeds it the batches it drains from the
// ProgressChannel with Apply, and removes finished tasks with Acknowledge
// once it has shown the outcome. Task state therefore only changes at poll
// time.
type Queue struct {
	tasks     []*Task          // Creation order
	tasksByID map[string]*Task // Index by ID
	mu        sync.RWMutex
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		tasksByID: make(map[string]*Task),
	}
}

func (q *Queue) add(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	q.tasksByID[t.ID] = t
}

// Apply folds a drained batch into the tracked tasks and returns the task
// events it contained, in order. Events for unknown tasks are returned but
// change nothing.
func (q *Queue) Apply(batch []events.Event) []*events.TaskEvent {
	out := make([]*events.TaskEvent, 0, len(batch))

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, ev := range batch {
		te, ok := ev.(*events.TaskEvent)
		if !ok {
			continue
		}
		out = append(out, te)

		task, exists := q.tasksByID[te.TaskID]
		if !exists {
			continue
		}
		q.applyLocked(task, te)
	}
	return out
}

func (q *Queue) applyLocked(task *Task, ev *events.TaskEvent) {
	switch ev.EventType {
	case events.EventTaskRunning:
		_ = task.transition(TaskRunning, ev.Time)
	case events.EventTaskProgress:
		if ev.Percent > task.Percent {
			task.Percent = ev.Percent
		}
	case events.EventTaskStatus:
		task.Status = ev.Message
	case events.EventTaskSucceeded:
		if task.transition(TaskSucceeded, ev.Time) == nil {
			task.Percent = 100
			if ev.Message != "" {
				task.Status = ev.Message
			}
		}
	case events.EventTaskFailed:
		if task.transition(TaskFailed, ev.Time) == nil {
			task.Err = ev.Err
			if ev.Message != "" {
				task.Status = ev.Message
			}
		}
	}
}

// Acknowledge removes a finished task. The caller invokes it after the
// task's terminal event has been shown.
func (q *Queue) Acknowledge(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.tasksByID[taskID]
	if !exists {
		return ErrUnknownTask
	}
	if !task.IsTerminal() {
		return ErrTaskNotDone
	}

	delete(q.tasksByID, taskID)
	for i, t := range q.tasks {
		if t.ID == taskID {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			break
		}
	}
	return nil
}

// ClearCompleted acknowledges every finished task.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.State {
		case TaskPending:
			stats.Pending++
		case TaskRunning:
			stats.Running++
		case TaskSucceeded:
			stats.Succeeded++
		case TaskFailed:
			stats.Failed++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks in creation order.
func (q *Queue) GetTasks() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = *task
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[taskID]
	if !exists {
		return Task{}, false
	}
	return *task, true
}
