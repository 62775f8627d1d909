package orchestrator

import (
	"context"
	"errors"
	"log"
	"path/filepath"

	"github.com/drumextract/api/internal/model"
	"github.com/drumextract/api/internal/pipeline"
	"github.com/drumextract/api/internal/task"
)

// Separator drives the stem-isolation stage.
type Separator interface {
	Separate(ctx context.Context, taskID, inputPath string, progress func(model.Progress)) error
}

// Transcriber drives the audio-to-MIDI stage.
type Transcriber interface {
	Transcribe(ctx context.Context, taskID, drumPath string, onset, frame float64, progress func(model.Progress)) error
}

// Orchestrator schedules stage runners against tasks, advancing the
// lifecycle and rebroadcasting progress. Each stage runs in its own
// goroutine so tasks never block one another; runner failures are converted
// to task state here and never escape.
type Orchestrator struct {
	root        context.Context
	registry    *task.Registry
	separator   Separator
	transcriber Transcriber
	outputDir   string
}

// New constructs an orchestrator. Stage contexts derive from root, so
// cancelling it on shutdown interrupts every running subprocess.
func New(root context.Context, reg *task.Registry, sep Separator, trans Transcriber, outputDir string) *Orchestrator {
	return &Orchestrator{
		root:        root,
		registry:    reg,
		separator:   sep,
		transcriber: trans,
		outputDir:   outputDir,
	}
}

// StartSeparation begins stage one for a pending task. It is idempotent: a
// second caller racing on the same task gets false and no second run starts.
func (o *Orchestrator) StartSeparation(t *task.Task) bool {
	ctx, release, ok := t.BeginStage(model.TaskStatusPending, o.root)
	if !ok {
		return false
	}
	go o.runSeparation(ctx, release, t)
	return true
}

func (o *Orchestrator) runSeparation(ctx context.Context, release func(), t *task.Task) {
	defer release()
	log.Printf("Starting separation for task %s", t.ID)

	err := o.separator.Separate(ctx, t.ID, t.InputPath, t.SetProgress)
	if err != nil {
		o.stageFailed(t, "separation", err)
		return
	}
	t.Advance(model.TaskStatusAwaitingMIDI)
	log.Printf("Separation complete for task %s", t.ID)
}

// StartTranscription begins stage two. It only fires from awaiting_midi and
// only in response to an explicit client command; transcription is never
// auto-started because the thresholds are user-tunable.
func (o *Orchestrator) StartTranscription(t *task.Task, onset, frame float64) bool {
	ctx, release, ok := t.BeginStage(model.TaskStatusAwaitingMIDI, o.root)
	if !ok {
		return false
	}
	go o.runTranscription(ctx, release, t, onset, frame)
	return true
}

func (o *Orchestrator) runTranscription(ctx context.Context, release func(), t *task.Task, onset, frame float64) {
	defer release()
	log.Printf("Starting transcription for task %s (onset=%g frame=%g)", t.ID, onset, frame)

	drumPath := filepath.Join(o.outputDir, t.ID+"_drums.wav")
	err := o.transcriber.Transcribe(ctx, t.ID, drumPath, onset, frame, t.SetProgress)
	if err != nil {
		o.stageFailed(t, "transcription", err)
		return
	}
	t.Advance(model.TaskStatusComplete)
	log.Printf("Transcription complete for task %s", t.ID)
}

// Cancel moves a non-terminal task to cancelled and interrupts its running
// stage, if any.
func (o *Orchestrator) Cancel(t *task.Task) bool {
	if !t.Cancel() {
		return false
	}
	log.Printf("Task %s cancelled", t.ID)
	return true
}

func (o *Orchestrator) stageFailed(t *task.Task, stage string, err error) {
	if errors.Is(err, context.Canceled) {
		// The task was cancelled (or the process is shutting down); the
		// status is already terminal.
		log.Printf("%s interrupted for task %s", stage, t.ID)
		return
	}
	var opErr *pipeline.OperationError
	msg := err.Error()
	if errors.As(err, &opErr) {
		msg = opErr.Reason
	}
	log.Printf("%s failed for task %s: %v", stage, t.ID, err)
	t.Fail(msg)
}
