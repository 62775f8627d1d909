package reaper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumextract/api/internal/model"
	"github.com/drumextract/api/internal/task"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestReaper_EvictsExpiredTasks(t *testing.T) {
	uploadDir := t.TempDir()
	outputDir := t.TempDir()
	reg := task.NewRegistry()

	input := filepath.Join(uploadDir, "old.wav")
	writeFile(t, input)
	old := reg.Create(task.NewID(), input, "old.wav")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	writeFile(t, filepath.Join(outputDir, old.ID+"_drums.wav"))
	writeFile(t, filepath.Join(outputDir, old.ID+"_stems", "vocals.wav"))

	freshInput := filepath.Join(uploadDir, "fresh.wav")
	writeFile(t, freshInput)
	fresh := reg.Create(task.NewID(), freshInput, "fresh.wav")

	r := New(reg, uploadDir, outputDir, time.Hour, time.Hour)
	r.Sweep(time.Now())

	_, ok := reg.Get(old.ID)
	assert.False(t, ok, "expired task still registered")
	assert.NoFileExists(t, input)
	assert.NoFileExists(t, filepath.Join(outputDir, old.ID+"_drums.wav"))
	assert.NoDirExists(t, filepath.Join(outputDir, old.ID+"_stems"))

	_, ok = reg.Get(fresh.ID)
	assert.True(t, ok, "fresh task evicted")
	assert.FileExists(t, freshInput)
}

func TestReaper_SkipsBusyTasks(t *testing.T) {
	uploadDir := t.TempDir()
	outputDir := t.TempDir()
	reg := task.NewRegistry()

	input := filepath.Join(uploadDir, "busy.wav")
	writeFile(t, input)
	busy := reg.Create(task.NewID(), input, "busy.wav")
	busy.CreatedAt = time.Now().Add(-2 * time.Hour)

	_, release, ok := busy.BeginStage(model.TaskStatusPending, context.Background())
	require.True(t, ok)

	r := New(reg, uploadDir, outputDir, time.Hour, time.Hour)
	r.Sweep(time.Now())

	_, found := reg.Get(busy.ID)
	assert.True(t, found, "busy task evicted mid-stage")
	assert.FileExists(t, input)

	// Once the stage finishes, the next sweep takes it.
	release()
	r.Sweep(time.Now())
	_, found = reg.Get(busy.ID)
	assert.False(t, found)
}

func TestReaper_SweptTaskCannotStartStage(t *testing.T) {
	uploadDir := t.TempDir()
	outputDir := t.TempDir()
	reg := task.NewRegistry()

	input := filepath.Join(uploadDir, "stale.wav")
	writeFile(t, input)
	stale := reg.Create(task.NewID(), input, "stale.wav")
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)

	r := New(reg, uploadDir, outputDir, time.Hour, time.Hour)
	r.Sweep(time.Now())

	// A session holding a stale pointer must not be able to start a run
	// against the deleted files.
	_, _, ok := stale.BeginStage(model.TaskStatusPending, context.Background())
	assert.False(t, ok, "stage started against a swept task")
	assert.Equal(t, model.TaskStatusCancelled, stale.Status())
	assert.NoFileExists(t, input)
}

func TestReaper_MissingFilesIgnored(t *testing.T) {
	reg := task.NewRegistry()
	gone := reg.Create(task.NewID(), "/nonexistent/in.wav", "in.wav")
	gone.CreatedAt = time.Now().Add(-2 * time.Hour)

	r := New(reg, t.TempDir(), t.TempDir(), time.Hour, time.Hour)
	r.Sweep(time.Now()) // must not panic

	_, found := reg.Get(gone.ID)
	assert.False(t, found)
}
