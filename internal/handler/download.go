package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drumextract/api/internal/service"
	"github.com/drumextract/api/pkg/response"
)

type DownloadHandler struct {
	service *service.TaskService
}

func NewDownloadHandler(svc *service.TaskService) *DownloadHandler {
	return &DownloadHandler{service: svc}
}

// Drums handles GET /preview/:taskId and GET /download/drums/:taskId.
// 404 until separation has produced the drum stem.
func (h *DownloadHandler) Drums(c *fiber.Ctx) error {
	path, err := h.service.DrumPath(c.Params("taskId"))
	if err != nil {
		return response.NotFound(c, "Drum stem not available")
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.SendFile(path)
}

// Midi handles GET /download/midi/:taskId. 404 until transcription is done.
func (h *DownloadHandler) Midi(c *fiber.Ctx) error {
	path, err := h.service.MidiPath(c.Params("taskId"))
	if err != nil {
		return response.NotFound(c, "MIDI not available")
	}
	c.Set(fiber.HeaderContentType, "audio/midi")
	return c.SendFile(path)
}

// Stem handles GET /download/stems/:taskId/:stem for the non-drum stems.
func (h *DownloadHandler) Stem(c *fiber.Ctx) error {
	path, err := h.service.StemPath(c.Params("taskId"), c.Params("stem"))
	if err != nil {
		return response.NotFound(c, "Stem not available")
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.SendFile(path)
}
