// Package registry tracks the set of in-flight download tasks by id, giving
// the server and CLI a shared place to admit, cancel, and delete them.
package registry

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rivermist/hlsdl/internal/logging"
)

// Task is one registered download's control state and temp directory.
// Cancelled and Paused are read by the scheduler and fetcher at their
// cooperative suspension points.
type Task struct {
	ID      string
	TempDir string

	cancelled atomic.Bool
	paused    atomic.Bool
}

// Cancel sets the cancellation flag. Safe for concurrent use.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool {
	return t.cancelled.Load()
}

// Pause sets the paused flag.
func (t *Task) Pause() {
	t.paused.Store(true)
}

// Resume clears the paused flag.
func (t *Task) Resume() {
	t.paused.Store(false)
}

// IsPaused reports whether the task is currently paused.
func (t *Task) IsPaused() bool {
	return t.paused.Load()
}

// Registry is the id -> *Task map guarding task lifecycle, behind a single
// mutex per spec: admission, cancellation, and deletion never need finer
// granularity than one task map at a time.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Add registers a new task under id and tempDir. A duplicate id is not an
// error: it is logged as a warning and the already-registered task is
// returned so a caller that races its own admission (or retries a request)
// keeps working with the original task instead of failing.
func (r *Registry) Add(id, tempDir string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.tasks[id]; exists {
		log.Print(logging.Tag("registry", "task %q already registered, reusing existing entry", id))
		return existing
	}
	task := &Task{ID: id, TempDir: tempDir}
	r.tasks[id] = task
	return task
}

// Get returns the task registered under id, or (nil, false) if none exists.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Exists reports whether id is currently registered.
func (r *Registry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Cancel sets the task's cancel flag and removes it from the map, leaving
// its temp directory on disk so a later run can resume it. An absent id is
// logged as a warning, not an error: cancelling a task that already
// finished or was never admitted is not a failure. Idempotent.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if !ok {
		log.Print(logging.Tag("registry", "cancel: task %q not found", id))
		return
	}
	task.Cancel()
}

// Pause marks the task as paused. The fetcher's per-chunk checkpoint blocks
// until Resume or Cancel is called. An absent id is logged, not an error.
func (r *Registry) Pause(id string) {
	task, ok := r.Get(id)
	if !ok {
		log.Print(logging.Tag("registry", "pause: task %q not found", id))
		return
	}
	task.Pause()
}

// Resume clears a task's paused flag. An absent id is logged, not an error.
func (r *Registry) Resume(id string) {
	task, ok := r.Get(id)
	if !ok {
		log.Print(logging.Tag("registry", "resume: task %q not found", id))
		return
	}
	task.Resume()
}

// Delete cancels the task (if still registered), removes it from the map,
// and purges its temp directory. Unlike Cancel, this is not resumable. An
// absent id is a no-op, not an error: Idempotent.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if !ok {
		log.Print(logging.Tag("registry", "delete: task %q not found", id))
		return nil
	}
	task.Cancel()

	if task.TempDir != "" {
		if err := os.RemoveAll(task.TempDir); err != nil {
			return fmt.Errorf("registry: removing temp dir %s for task %q: %w", task.TempDir, id, err)
		}
	}
	return nil
}
