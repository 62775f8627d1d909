package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/drumextract/api/internal/model"
)

// Separator isolates the drum stem from a mixed recording using the spleeter
// CLI with the 4-stem model, normalizing its progress-bar output to 0-100.
type Separator struct {
	binary    string
	outputDir string
	exec      Executor
}

// SeparatorOption configures a Separator.
type SeparatorOption func(*Separator)

// WithSeparatorExecutor injects a custom executor (primarily for tests).
func WithSeparatorExecutor(exec Executor) SeparatorOption {
	return func(s *Separator) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// NewSeparator constructs a Separator writing artifacts under outputDir.
func NewSeparator(binary, outputDir string, opts ...SeparatorOption) *Separator {
	s := &Separator{
		binary:    binary,
		outputDir: outputDir,
		exec:      commandExecutor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Separate runs stem separation for one task. On success the drum stem lives
// at {id}_drums.wav and the remaining stems under {id}_stems/; spleeter's
// intermediate folder is unpacked and removed.
func (s *Separator) Separate(ctx context.Context, taskID, inputPath string, progress func(model.Progress)) error {
	if _, err := os.Stat(inputPath); err != nil {
		return failf(model.StageSeparation, "input file unreadable: %v", err)
	}

	progress(model.Progress{Stage: model.StageSeparation, Percent: 0, Message: "Starting stem separation..."})

	stemsDir := filepath.Join(s.outputDir, taskID+"_stems")
	if err := os.MkdirAll(stemsDir, 0o755); err != nil {
		return failf(model.StageSeparation, "create stems dir: %v", err)
	}

	args := []string{"separate", "-p", "spleeter:4stems", "-o", stemsDir, inputPath}
	err := s.exec.Run(ctx, s.binary, args, func(line string) {
		if pct, ok := parsePercent(line); ok {
			progress(model.Progress{Stage: model.StageSeparation, Percent: pct, Message: "Isolating drum stem..."})
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return failf(model.StageSeparation, "spleeter failed: %v", err)
	}

	// spleeter nests its output in a folder named after the input file.
	inner, err := innerStemFolder(stemsDir)
	if err != nil {
		return err
	}

	drumSource := filepath.Join(inner, "drums.wav")
	if _, err := os.Stat(drumSource); err != nil {
		return failf(model.StageSeparation, "drums stem not found")
	}
	if err := os.Rename(drumSource, filepath.Join(s.outputDir, taskID+"_drums.wav")); err != nil {
		return failf(model.StageSeparation, "move drums stem: %v", err)
	}

	// Keep the remaining stems for the advanced download routes.
	for _, stem := range []string{"vocals.wav", "bass.wav", "other.wav"} {
		src := filepath.Join(inner, stem)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, filepath.Join(stemsDir, stem))
		}
	}
	_ = os.RemoveAll(inner)

	progress(model.Progress{Stage: model.StageSeparation, Percent: 100, Message: "Separation complete."})
	return nil
}

func innerStemFolder(stemsDir string) (string, error) {
	entries, err := os.ReadDir(stemsDir)
	if err != nil {
		return "", failf(model.StageSeparation, "read stems dir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(stemsDir, e.Name()), nil
		}
	}
	return "", failf(model.StageSeparation, "no stems generated")
}
