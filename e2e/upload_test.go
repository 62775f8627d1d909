package e2e

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestUpload(t *testing.T) {
	ta := setupApp(t)

	req := createMultipartUploadRequest(t, "drums_take1.WAV", "audio/wav")
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	id, _ := result["task_id"].(string)
	if id == "" {
		t.Fatal("expected task_id in response")
	}
	if result["status"] != "success" {
		t.Errorf("expected status success, got %v", result["status"])
	}

	// Upload is stored keyed by task id with a lowercased extension.
	stored := filepath.Join(ta.uploadDir, id+".wav")
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("uploaded file not stored at %s: %v", stored, err)
	}

	// Task must be registered and idle before a session connects.
	tk, ok := ta.registry.Get(id)
	if !ok {
		t.Fatal("task not found in registry after upload")
	}
	if tk.Filename != "drums_take1.WAV" {
		t.Errorf("expected original filename preserved, got %q", tk.Filename)
	}
}

func TestUploadMissingFile(t *testing.T) {
	ta := setupApp(t)

	req, err := http.NewRequest(http.MethodPost, "/upload", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUploadRejectsNonAudio(t *testing.T) {
	ta := setupApp(t)

	req := createMultipartUploadRequest(t, "notes.txt", "text/plain")
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", result)
	}
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR code, got %v", errObj["code"])
	}
}

func TestUploadStatusNeverCompleteImmediately(t *testing.T) {
	ta := setupApp(t)

	id := uploadTask(t, ta)

	resp := doRequest(t, ta.app, http.MethodGet, "/status/"+id)
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	status, _ := result["status"].(string)
	if status != "pending" && status != "processing" {
		t.Errorf("expected pending or processing right after upload, got %q", status)
	}
	if result["midi_url"] != nil {
		t.Errorf("midi_url must be null before transcription completes, got %v", result["midi_url"])
	}
}
