package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drumextract/api/internal/model"
)

// Transcriber converts the isolated drum stem to MIDI with the basic-pitch
// CLI. Inference dominates the runtime, so percent markers in the tool output
// are scaled to leave room for note extraction at the end.
type Transcriber struct {
	binary    string
	outputDir string
	exec      Executor
}

// TranscriberOption configures a Transcriber.
type TranscriberOption func(*Transcriber)

// WithTranscriberExecutor injects a custom executor (primarily for tests).
func WithTranscriberExecutor(exec Executor) TranscriberOption {
	return func(t *Transcriber) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// NewTranscriber constructs a Transcriber writing artifacts under outputDir.
func NewTranscriber(binary, outputDir string, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		binary:    binary,
		outputDir: outputDir,
		exec:      commandExecutor{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe runs MIDI extraction against a drum stem with the given onset
// and frame thresholds. On success the MIDI file lives at {id}_drums.mid.
func (t *Transcriber) Transcribe(ctx context.Context, taskID, drumPath string, onset, frame float64, progress func(model.Progress)) error {
	if _, err := os.Stat(drumPath); err != nil {
		return failf(model.StageMIDI, "drum stem not found: %v", err)
	}

	progress(model.Progress{Stage: model.StageMIDI, Percent: 0, Message: "Initializing MIDI extraction..."})

	workDir, err := os.MkdirTemp(t.outputDir, taskID+"_midi_")
	if err != nil {
		return failf(model.StageMIDI, "create work dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	args := []string{
		workDir,
		drumPath,
		"--onset-threshold", fmt.Sprintf("%g", onset),
		"--frame-threshold", fmt.Sprintf("%g", frame),
	}
	err = t.exec.Run(ctx, t.binary, args, func(line string) {
		if pct, ok := parsePercent(line); ok {
			// Cap at 90 until the MIDI file is actually written.
			progress(model.Progress{Stage: model.StageMIDI, Percent: pct * 90 / 100, Message: "Extracting MIDI..."})
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return failf(model.StageMIDI, "basic-pitch failed: %v", err)
	}

	produced, err := filepath.Glob(filepath.Join(workDir, "*.mid"))
	if err != nil || len(produced) == 0 {
		return failf(model.StageMIDI, "no MIDI generated")
	}
	if err := os.Rename(produced[0], filepath.Join(t.outputDir, taskID+"_drums.mid")); err != nil {
		return failf(model.StageMIDI, "move MIDI file: %v", err)
	}

	progress(model.Progress{Stage: model.StageComplete, Percent: 100, Message: "MIDI extraction successful!"})
	return nil
}
