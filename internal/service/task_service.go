package service

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/drumextract/api/internal/model"
	"github.com/drumextract/api/internal/task"
)

var (
	// ErrUnknownTask means the id is not in the registry.
	ErrUnknownTask = errors.New("task not found")
	// ErrArtifactNotReady means the requested file has not been produced.
	ErrArtifactNotReady = errors.New("artifact not ready")
)

// TaskService sits between the HTTP handlers and the registry: it stores
// uploads, assembles status responses and resolves artifact paths under the
// stable naming contract ({id}_drums.wav, {id}_drums.mid, {id}_stems/*.wav).
type TaskService struct {
	registry  *task.Registry
	uploadDir string
	outputDir string
}

// NewTaskService constructs a TaskService.
func NewTaskService(reg *task.Registry, uploadDir, outputDir string) *TaskService {
	return &TaskService{registry: reg, uploadDir: uploadDir, outputDir: outputDir}
}

// CreateTask stores the uploaded audio under {id}{original-extension} and
// registers a pending task for it.
func (s *TaskService) CreateTask(src io.Reader, filename string) (*model.UploadResponse, error) {
	id := task.NewID()
	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.uploadDir, id+ext)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.registry.Create(id, path, filename)
	log.Printf("Task %s created for upload %q", id, filename)

	return &model.UploadResponse{TaskID: id, Status: "success"}, nil
}

// Status assembles the status response for a task. The download URLs appear
// only once the corresponding stage has reached its success point.
func (s *TaskService) Status(id string) (*model.StatusResponse, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrUnknownTask
	}
	snap := t.Snapshot()

	resp := &model.StatusResponse{
		Status:   snap.Status,
		Progress: snap.Progress,
	}
	if snap.Status == model.TaskStatusComplete {
		midi := "/download/midi/" + id
		resp.MidiURL = &midi
	}
	if snap.Status == model.TaskStatusAwaitingMIDI || snap.Status == model.TaskStatusComplete {
		drum := "/download/drums/" + id
		resp.DrumURL = &drum
	}
	if snap.Error != "" {
		e := snap.Error
		resp.Error = &e
	}
	return resp, nil
}

// Delete evicts the registry entry and interrupts any running stage. Files
// are deliberately orphaned: the reaper only sweeps registered tasks, and a
// cancelled stage subprocess may still be winding down, so removing the
// files here would race with its final writes.
func (s *TaskService) Delete(id string) error {
	t, ok := s.registry.Get(id)
	if !ok {
		return ErrUnknownTask
	}
	t.Cancel()
	s.registry.Delete(id)
	log.Printf("Task %s deleted", id)
	return nil
}

// DrumPath resolves the isolated drum stem for download.
func (s *TaskService) DrumPath(id string) (string, error) {
	return s.artifact(id + "_drums.wav")
}

// MidiPath resolves the transcribed MIDI for download.
func (s *TaskService) MidiPath(id string) (string, error) {
	return s.artifact(id + "_drums.mid")
}

// StemPath resolves one of the non-drum stems. The stem name must be a bare
// file name; traversal attempts resolve to not-found.
func (s *TaskService) StemPath(id, stem string) (string, error) {
	if stem != filepath.Base(stem) || stem == "." || stem == ".." {
		return "", ErrArtifactNotReady
	}
	return s.artifact(filepath.Join(id+"_stems", stem+".wav"))
}

func (s *TaskService) artifact(rel string) (string, error) {
	path := filepath.Join(s.outputDir, rel)
	if _, err := os.Stat(path); err != nil {
		return "", ErrArtifactNotReady
	}
	return path, nil
}
