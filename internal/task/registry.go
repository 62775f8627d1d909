package task

import "sync"

// Registry is the sole owner of in-flight tasks. It is volatile by design;
// nothing survives a process restart. The registry is created once at startup
// and handed explicitly to every component that needs it.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Create inserts a fresh pending task for a stored upload and returns it.
// The initial progress is the idle event so the first snapshot a session
// sends is always meaningful.
func (r *Registry) Create(id, inputPath, filename string) *Task {
	t := newTask(id, inputPath, filename)
	r.mu.Lock()
	r.tasks[id] = t
	r.mu.Unlock()
	return t
}

// Get looks up a task by id.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Delete removes the registry entry. File cleanup is the caller's concern.
// A lookup started after Delete returns never observes the removed task.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// List returns the current tasks for the reaper's sweep.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}
