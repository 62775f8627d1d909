package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/drumextract/api/internal/service"
	"github.com/drumextract/api/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

type UploadHandler struct {
	service   *service.TaskService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.TaskService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /upload: stores the audio file and creates a pending
// task. Processing starts only when a session connects.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"audio/wav":   true,
		"audio/x-wav": true,
		"audio/wave":  true,
		"audio/mpeg":  true,
		"audio/mp3":   true,
		"audio/mp4":   true,
		"audio/x-m4a": true,
		"audio/aac":   true,
		"audio/x-aac": true,
		"audio/flac":  true,
		"audio/ogg":   true,
	}
	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: WAV, MP3, M4A, AAC, FLAC, OGG", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.CreateTask(f, file.Filename)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
