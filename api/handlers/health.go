package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/suwandre/fundarb/internal/scheduler"
)

type StateReporter interface {
	State() scheduler.State
}

type HealthHandler struct {
	scheduler StateReporter
}

func NewHealthHandler(scheduler StateReporter) *HealthHandler {
	return &HealthHandler{scheduler}
}

// Handles GET /healthz.
func (h *HealthHandler) GetHealth(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "ok",
		"scheduler": h.scheduler.State().String(),
	})
}
