package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/metrics"
)

// ErrTaskNotFound is returned for an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus defines the possible states of a clustering task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is one asynchronous clustering run. Its exported state is read
// through Info.
type Task struct {
	ID string

	mu     sync.RWMutex
	info   TaskInfo
	result *gmc.Result
	cancel context.CancelFunc
	// running is set while the task holds a place in metrics.ActiveTasks.
	running bool
}

// TaskManager tracks every submitted task.
type TaskManager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
}

// NewTaskManager creates an empty task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks: make(map[string]*Task),
	}
}

// NewTask registers a queued task whose run is stopped by cancel.
func (tm *TaskManager) NewTask(cancel context.CancelFunc) *Task {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.New().String()
	task := &Task{
		ID:     id,
		cancel: cancel,
		info: TaskInfo{
			ID:        id,
			Status:    TaskStatusQueued,
			CreatedAt: time.Now().UTC(),
		},
	}
	tm.tasks[id] = task
	return task
}

// GetTask safely retrieves a task by its ID.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, found := tm.tasks[id]
	return task, found
}

// CancelAll stops every unfinished run.
func (tm *TaskManager) CancelAll() {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, t := range tm.tasks {
		t.Cancel()
	}
}

// --- Methods for updating a Task ---

// SetStatus updates the status of the task. Entering TaskStatusRunning
// counts the task in metrics.ActiveTasks until Finish.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Status = status
	if status == TaskStatusRunning && !t.running {
		t.running = true
		metrics.ActiveTasks.Inc()
	}
}

// SetProgress records the last finished iteration.
func (t *Task) SetProgress(it gmc.Iteration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Iteration = it.Index + 1
	t.info.Lambda = it.NextLambda
	t.info.ProgressMessage = fmt.Sprintf("iteration %d: %s lambda", it.Index, it.Action)
}

// Finish stores the outcome and moves the task to a terminal state.
func (t *Task) Finish(res *gmc.Result, snapshot string, err error, cancelled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.info.FinishedAt = &now
	t.info.Snapshot = snapshot
	t.result = res
	switch {
	case cancelled:
		t.info.Status = TaskStatusCancelled
		if err != nil {
			t.info.Error = err.Error()
		}
	case err != nil:
		t.info.Status = TaskStatusFailed
		t.info.Error = err.Error()
	default:
		t.info.Status = TaskStatusCompleted
		t.info.ProgressMessage = "done"
	}
	if t.running {
		t.running = false
		metrics.ActiveTasks.Dec()
	}
}

// Cancel requests the run to stop at its next iteration boundary.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Result returns the stored result and the current status.
func (t *Task) Result() (*gmc.Result, TaskStatus) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.info.Status
}

// Info returns a copy of the task state.
func (t *Task) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}
