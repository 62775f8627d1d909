package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drumextract/api/internal/model"
)

// Task is one end-to-end job moving through the two-stage pipeline. All
// mutable state is guarded by the task's own mutex; readers take a Snapshot
// rather than touching fields directly, so no observer ever sees a
// half-updated task.
type Task struct {
	ID        string
	InputPath string
	Filename  string
	CreatedAt time.Time

	mu       sync.Mutex
	status   model.TaskStatus
	progress model.Progress
	errMsg   string

	// changed is closed and replaced on every mutation. Waiters grab the
	// current channel via Changed() and re-read the task after it closes.
	changed chan struct{}

	// activeStages counts running stage goroutines so the reaper never
	// evicts a task while a runner still writes to its files.
	activeStages int
	stage        *stageHandle
}

// stageHandle identifies one stage run. Each BeginStage allocates a fresh
// handle so a finishing stage can tell whether the recorded cancel func is
// its own or belongs to a stage that started after it.
type stageHandle struct {
	cancel context.CancelFunc
}

// Snapshot is a consistent read of a task's mutable fields.
type Snapshot struct {
	Status   model.TaskStatus
	Progress model.Progress
	Error    string
}

// NewID returns a fresh task identifier. IDs are never reused; a collision
// in the uuid space is treated as impossible.
func NewID() string {
	return uuid.New().String()
}

func newTask(id, inputPath, filename string) *Task {
	return &Task{
		ID:        id,
		InputPath: inputPath,
		Filename:  filename,
		CreatedAt: time.Now(),
		status:    model.TaskStatusPending,
		progress:  model.Progress{Stage: model.StageIdle, Percent: 0, Message: "Ready"},
		changed:   make(chan struct{}),
	}
}

// Changed returns a channel that closes on the next mutation. Callers must
// re-read the task after the channel closes; the signal carries no payload.
func (t *Task) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

func (t *Task) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Snapshot returns the task's current status, progress and error message.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Status: t.status, Progress: t.progress, Error: t.errMsg}
}

// Status returns the current lifecycle state.
func (t *Task) Status() model.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetProgress overwrites the latest progress event and wakes waiters.
// Updates arriving after a terminal state are dropped.
func (t *Task) SetProgress(p model.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.progress = p
	t.notifyLocked()
}

// Advance moves the task to a later lifecycle state. Transitions out of
// complete, failed or cancelled are suppressed so a late runner result can
// never resurrect a finished task.
func (t *Task) Advance(to model.TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = to
	t.notifyLocked()
	return true
}

// Fail marks the task failed with a human-readable reason. The error message
// is set here and nowhere else, keeping it non-empty exactly when the status
// is failed.
func (t *Task) Fail(msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = model.TaskStatusFailed
	t.errMsg = msg
	t.notifyLocked()
	return true
}

// Cancel moves a non-terminal task to cancelled and interrupts any running
// stage via its context.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = model.TaskStatusCancelled
	if t.stage != nil {
		t.stage.cancel()
		t.stage = nil
	}
	t.notifyLocked()
	return true
}

// BeginStage atomically moves the task from `from` to processing and takes a
// stage reference. The compare-and-swap is what makes session-triggered
// starts idempotent: two connections racing to start separation yields
// exactly one run. The returned release func must be called exactly once
// when the stage goroutine finishes; it cancels only this stage's context,
// so a stage that ends after its successor has already started cannot kill
// the successor's run.
func (t *Task) BeginStage(from model.TaskStatus, parent context.Context) (context.Context, func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != from {
		return nil, nil, false
	}
	t.status = model.TaskStatusProcessing
	ctx, cancel := context.WithCancel(parent)
	h := &stageHandle{cancel: cancel}
	t.stage = h
	t.activeStages++
	t.notifyLocked()

	release := func() {
		t.mu.Lock()
		t.activeStages--
		if t.stage == h {
			t.stage = nil
		}
		t.mu.Unlock()
		cancel()
	}
	return ctx, release, true
}

// Busy reports whether a stage goroutine is still running.
func (t *Task) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeStages > 0
}

// Evict closes the task to new stages ahead of file removal. It fails while
// a stage is still running; otherwise the task is moved to a terminal state
// (if it was not already in one) so a concurrent BeginStage loses its
// compare-and-swap and can never run against deleted files.
func (t *Task) Evict() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeStages > 0 {
		return false
	}
	if !t.status.Terminal() {
		t.status = model.TaskStatusCancelled
		t.notifyLocked()
	}
	return true
}
