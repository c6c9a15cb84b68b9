package winfake

import (
	"context"
	"fmt"
	"sync"

	"palisade-hq/palisade/pkg/winsys"
)

// TaskState is one task's fake state.
type TaskState struct {
	Enabled bool
	XML     string
}

// Tasks is an in-memory winsys.TaskStore.
type Tasks struct {
	mu sync.Mutex

	tasks map[string]TaskState

	// ExportErr is returned from Export when non-nil.
	ExportErr error

	// Ops records mutations in order, e.g. "disable \Vendor\Updater".
	Ops []string
}

// NewTasks creates an empty fake task store.
func NewTasks() *Tasks {
	return &Tasks{tasks: make(map[string]TaskState)}
}

// Seed primes one task.
func (t *Tasks) Seed(taskPath string, state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[normPath(taskPath)] = state
}

// State returns the current fake state of a task.
func (t *Tasks) State(taskPath string) (TaskState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.tasks[normPath(taskPath)]
	return state, ok
}

// Query implements winsys.TaskStore.
func (t *Tasks) Query(ctx context.Context, taskPath string) (winsys.TaskInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.tasks[normPath(taskPath)]
	if !ok {
		return winsys.TaskInfo{}, fmt.Errorf("%w: task %s", winsys.ErrNotFound, taskPath)
	}
	return winsys.TaskInfo{Enabled: state.Enabled}, nil
}

// Export implements winsys.TaskStore.
func (t *Tasks) Export(ctx context.Context, taskPath string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ExportErr != nil {
		return "", t.ExportErr
	}
	state, ok := t.tasks[normPath(taskPath)]
	if !ok {
		return "", fmt.Errorf("%w: task %s", winsys.ErrNotFound, taskPath)
	}
	return state.XML, nil
}

// SetEnabled implements winsys.TaskStore.
func (t *Tasks) SetEnabled(ctx context.Context, taskPath string, enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.tasks[normPath(taskPath)]
	if !ok {
		return fmt.Errorf("%w: task %s", winsys.ErrNotFound, taskPath)
	}
	state.Enabled = enabled
	t.tasks[normPath(taskPath)] = state
	verb := "disable "
	if enabled {
		verb = "enable "
	}
	t.Ops = append(t.Ops, verb+taskPath)
	return nil
}

// Delete implements winsys.TaskStore.
func (t *Tasks) Delete(ctx context.Context, taskPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tasks[normPath(taskPath)]; !ok {
		return fmt.Errorf("%w: task %s", winsys.ErrNotFound, taskPath)
	}
	delete(t.tasks, normPath(taskPath))
	t.Ops = append(t.Ops, "delete "+taskPath)
	return nil
}

// Register implements winsys.TaskStore. Registered tasks come back enabled,
// as Register-ScheduledTask leaves them.
func (t *Tasks) Register(ctx context.Context, taskPath, xml string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tasks[normPath(taskPath)] = TaskState{Enabled: true, XML: xml}
	t.Ops = append(t.Ops, "register "+taskPath)
	return nil
}
