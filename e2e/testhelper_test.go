package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/drumextract/api/internal/handler"
	"github.com/drumextract/api/internal/orchestrator"
	"github.com/drumextract/api/internal/pipeline"
	"github.com/drumextract/api/internal/service"
	"github.com/drumextract/api/internal/task"
)

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	registry  *task.Registry
	service   *service.TaskService
	orch      *orchestrator.Orchestrator
	uploadDir string
	outputDir string
}

// blockedExecutor never runs anything; e2e tests drive task state directly.
type blockedExecutor struct{}

func (blockedExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

// setupApp creates a Fiber app identical to main.go but with temp storage
// and stage runners that never complete, so task state is fully test-driven.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	uploadDir := t.TempDir()
	outputDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	validate := validator.New()
	registry := task.NewRegistry()
	separator := pipeline.NewSeparator("spleeter", outputDir, pipeline.WithSeparatorExecutor(blockedExecutor{}))
	transcriber := pipeline.NewTranscriber("basic-pitch", outputDir, pipeline.WithTranscriberExecutor(blockedExecutor{}))
	orch := orchestrator.New(ctx, registry, separator, transcriber, outputDir)
	taskService := service.NewTaskService(registry, uploadDir, outputDir)

	uploadHandler := handler.NewUploadHandler(taskService, validate)
	taskHandler := handler.NewTaskHandler(taskService)
	downloadHandler := handler.NewDownloadHandler(taskService)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/upload", uploadHandler.Upload)
	app.Get("/status/:taskId", taskHandler.Status)
	app.Delete("/task/:taskId", taskHandler.Delete)

	app.Get("/preview/:taskId", downloadHandler.Drums)
	app.Get("/download/drums/:taskId", downloadHandler.Drums)
	app.Get("/download/midi/:taskId", downloadHandler.Midi)
	app.Get("/download/stems/:taskId/:stem", downloadHandler.Stem)

	return &testApp{
		app:       app,
		registry:  registry,
		service:   taskService,
		orch:      orch,
		uploadDir: uploadDir,
		outputDir: outputDir,
	}
}

// createMultipartUploadRequest builds a multipart/form-data request with a
// fake audio file.
func createMultipartUploadRequest(t *testing.T, filename, contentType string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	partHeader.Set("Content-Type", contentType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	// Minimal WAV header + some data
	wavHeader := []byte("RIFF\x00\x00\x00\x00WAVEfmt ")
	fakeData := make([]byte, 1024)
	_, _ = part.Write(wavHeader)
	_, _ = part.Write(fakeData)

	writer.Close()

	req, err := http.NewRequest(http.MethodPost, "/upload", &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// uploadTask uploads a file and returns the created task id.
func uploadTask(t *testing.T, ta *testApp) string {
	t.Helper()
	req := createMultipartUploadRequest(t, "sample.wav", "audio/wav")
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	id, _ := result["task_id"].(string)
	if id == "" {
		t.Fatal("expected task_id in upload response")
	}
	return id
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus fails the test unless the response has the wanted status code.
func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}
