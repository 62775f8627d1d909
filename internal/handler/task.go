package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/drumextract/api/internal/model"
	"github.com/drumextract/api/internal/service"
	"github.com/drumextract/api/pkg/response"
)

type TaskHandler struct {
	service *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{service: svc}
}

// Status handles GET /status/:taskId
func (h *TaskHandler) Status(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	result, err := h.service.Status(taskID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTask) {
			return response.NotFound(c, "Task not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Delete handles DELETE /task/:taskId
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	if err := h.service.Delete(taskID); err != nil {
		if errors.Is(err, service.ErrUnknownTask) {
			return response.NotFound(c, "Task not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.DeleteResponse{Status: "deleted"})
}
