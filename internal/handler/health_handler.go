package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"gitbridge/internal/storage"
)

// HealthHandler reports service liveness, storage reachability and the
// configured model.
type HealthHandler struct {
	store storage.Backend
	model string
}

func NewHealthHandler(store storage.Backend, model string) *HealthHandler {
	return &HealthHandler{store: store, model: model}
}

func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/health", h.health)
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"model":   h.model,
		"storage": h.checkStorage(c.UserContext()),
	})
}

func (h *HealthHandler) checkStorage(ctx context.Context) string {
	if h.store == nil {
		return "not_configured"
	}
	if _, err := h.store.List(ctx, storage.PrefixMetadata); err != nil {
		return "error"
	}
	return "connected"
}
