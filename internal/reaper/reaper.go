package reaper

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/drumextract/api/internal/task"
)

// Reaper periodically evicts tasks past the retention deadline, removing
// their upload and output files before dropping the registry entry. Cleanup
// is best effort: a file that is already gone is not an error.
type Reaper struct {
	registry  *task.Registry
	uploadDir string
	outputDir string
	retention time.Duration
	interval  time.Duration
}

// New constructs a reaper.
func New(reg *task.Registry, uploadDir, outputDir string, retention, interval time.Duration) *Reaper {
	return &Reaper{
		registry:  reg,
		uploadDir: uploadDir,
		outputDir: outputDir,
		retention: retention,
		interval:  interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reaper shutting down.")
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep evicts every expired task that has no stage still running. Busy
// tasks keep their files and are retried on a later sweep. Evict closes the
// task to new stages before any file is touched, so a session connecting
// mid-sweep cannot start a run against deleted paths.
func (r *Reaper) Sweep(now time.Time) {
	cutoff := now.Add(-r.retention)
	for _, t := range r.registry.List() {
		if t.CreatedAt.After(cutoff) || !t.Evict() {
			continue
		}
		r.removeArtifacts(t)
		r.registry.Delete(t.ID)
		log.Printf("Reaped task %s", t.ID)
	}
}

func (r *Reaper) removeArtifacts(t *task.Task) {
	if t.InputPath != "" {
		_ = os.Remove(t.InputPath)
	}
	matches, err := filepath.Glob(filepath.Join(r.outputDir, t.ID+"*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.RemoveAll(m)
	}
}
