// Package service provides the ingestion business logic: task tracking,
// batch graph builds and streaming graph updates.
package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the state of a background task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// terminal reports whether a status accepts no further transitions.
func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// rank orders statuses along the pending -> processing -> terminal path.
func (s TaskStatus) rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskProcessing:
		return 1
	case TaskCompleted, TaskFailed:
		return 2
	default:
		return -1
	}
}

// Task is a value snapshot of a background task. Callers always receive
// copies; the manager owns the live state.
type Task struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TaskUpdate describes a partial update. Nil fields are left unchanged.
type TaskUpdate struct {
	Status   *TaskStatus
	Progress *int
	Message  *string
	Result   map[string]any
	Error    *string
}

type taskEntry struct {
	task Task
	subs map[int]chan Task
}

// TaskManager tracks background tasks in memory and notifies subscribers
// on every change. All methods are safe for concurrent use.
type TaskManager struct {
	mu      sync.RWMutex
	tasks   map[string]*taskEntry
	nextSub int
	logger  *slog.Logger
}

// NewTaskManager creates an empty task manager.
func NewTaskManager(logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{
		tasks:  make(map[string]*taskEntry),
		logger: logger,
	}
}

// Create registers a new pending task and returns its snapshot.
func (m *TaskManager) Create(taskType string, metadata map[string]any) Task {
	now := time.Now()
	task := Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Status:    TaskPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[task.ID] = &taskEntry{task: task, subs: make(map[int]chan Task)}
	m.mu.Unlock()

	m.logger.Info("task created", "task_id", task.ID, "type", taskType)
	return task
}

// Update applies a partial update to a task. Unknown IDs are a logged
// no-op. Status never moves backwards and terminal states are final;
// progress never decreases.
func (m *TaskManager) Update(id string, update TaskUpdate) {
	m.mu.Lock()
	entry, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("update for unknown task", "task_id", id)
		return
	}

	t := &entry.task
	if t.Status.terminal() {
		// Terminal state is final; subscribers are already closed.
		m.mu.Unlock()
		return
	}

	if update.Status != nil && update.Status.rank() >= t.Status.rank() {
		t.Status = *update.Status
		if t.Status.terminal() {
			now := time.Now()
			t.CompletedAt = &now
		}
	}
	if update.Progress != nil && *update.Progress > t.Progress {
		t.Progress = *update.Progress
	}
	if update.Message != nil {
		t.Message = *update.Message
	}
	if update.Result != nil {
		t.Result = update.Result
	}
	if update.Error != nil {
		t.Error = *update.Error
	}
	t.UpdatedAt = time.Now()

	snapshot := *t
	terminal := t.Status.terminal()
	// Notify while holding the lock so a concurrent Subscribe cancel can
	// never close a channel mid-send. All sends below are non-blocking.
	notify(entry.subs, snapshot, terminal)
	if terminal {
		entry.subs = make(map[int]chan Task)
	}
	m.mu.Unlock()
}

// Complete marks a task completed with a result and full progress.
func (m *TaskManager) Complete(id string, result map[string]any) {
	status := TaskCompleted
	progress := 100
	m.Update(id, TaskUpdate{Status: &status, Progress: &progress, Result: result})
	m.logger.Info("task completed", "task_id", id)
}

// Fail marks a task failed with an error message. Any result attached
// beforehand is retained, so partially ingested data stays discoverable.
func (m *TaskManager) Fail(id string, errMsg string) {
	status := TaskFailed
	m.Update(id, TaskUpdate{Status: &status, Error: &errMsg})
	m.logger.Error("task failed", "task_id", id, "error", errMsg)
}

// Get returns a snapshot of a task.
func (m *TaskManager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return entry.task, true
}

// List returns snapshots of all tasks, most recent first.
func (m *TaskManager) List() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]Task, 0, len(m.tasks))
	for _, entry := range m.tasks {
		tasks = append(tasks, entry.task)
	}

	slices.SortFunc(tasks, func(a, b Task) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return tasks
}

// Subscribe returns a channel that receives task snapshots on every
// change, starting with the current state. The channel is closed once the
// task reaches a terminal status. The returned cancel func detaches the
// subscription early and is safe to call more than once.
//
// Slow consumers miss intermediate snapshots rather than blocking
// updaters; the latest snapshot always gets through eventually because
// the terminal notification drains the buffer first.
func (m *TaskManager) Subscribe(id string) (<-chan Task, func()) {
	ch := make(chan Task, 8)

	m.mu.Lock()
	entry, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	current := entry.task
	if current.Status.terminal() {
		m.mu.Unlock()
		ch <- current
		close(ch)
		return ch, func() {}
	}

	subID := m.nextSub
	m.nextSub++
	entry.subs[subID] = ch
	ch <- current
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if e, ok := m.tasks[id]; ok {
				if _, attached := e.subs[subID]; attached {
					delete(e.subs, subID)
					close(ch)
				}
			}
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// notify fans a snapshot out to subscribers without blocking on slow
// ones. On terminal snapshots the buffer is drained first so the final
// state is always delivered, then the channels are closed.
func notify(subs map[int]chan Task, snapshot Task, terminal bool) {
	for _, ch := range subs {
		if terminal {
			for {
				select {
				case <-ch:
					continue
				default:
				}
				break
			}
			ch <- snapshot
			close(ch)
		} else {
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
