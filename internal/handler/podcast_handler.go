package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
	"gitbridge/internal/podcast"
)

// PodcastService is the podcast surface the handlers need.
type PodcastService interface {
	Generate(ctx context.Context, req models.GeneratePodcastRequest) (models.GeneratePodcastResponse, error)
	Stream(req models.GeneratePodcastRequest) (<-chan models.StreamEvent, func(), error)
	Audio(ctx context.Context, cacheKey string) ([]byte, error)
	Script(ctx context.Context, cacheKey string) (models.ScriptDocument, error)
	Segment(ctx context.Context, cacheKey string, index int) ([]byte, error)
	Cached() []models.PodcastCacheEntry
	Stats(ctx context.Context) (podcast.StorageStats, error)
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// PodcastHandler wires HTTP → PodcastService.
type PodcastHandler struct {
	svc PodcastService
}

// NewPodcastHandler creates a new PodcastHandler.
func NewPodcastHandler(svc PodcastService) *PodcastHandler {
	return &PodcastHandler{svc: svc}
}

// Register mounts the podcast generation and artifact routes.
func (h *PodcastHandler) Register(r fiber.Router) {
	r.Post("/generate-podcast", h.generate)
	r.Post("/generate-podcast-stream", h.generateStream)
	r.Get("/podcast-audio/:cache_key", h.audio)
	r.Get("/podcast-script/:cache_key", h.script)
	r.Get("/podcast-segment/:cache_key/:index", h.segment)
	r.Get("/cached-podcasts", h.cached)
	r.Get("/storage-stats", h.stats)
	r.Delete("/cleanup-old-files", h.cleanup)
}

func parsePodcastRequest(c *fiber.Ctx) (models.GeneratePodcastRequest, error) {
	var req models.GeneratePodcastRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = 5
	}
	return req, nil
}

// generate handles POST /generate-podcast  { "repo_url": "...", "duration_minutes": 5 }
func (h *PodcastHandler) generate(c *fiber.Ctx) error {
	req, err := parsePodcastRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.Generate(c.UserContext(), req)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(resp)
}

// generateStream handles POST /generate-podcast-stream as server-sent events.
// Each event is one JSON StreamEvent on a `data:` line; the stream ends with
// the complete or error event.
func (h *PodcastHandler) generateStream(c *fiber.Ctx) error {
	req, err := parsePodcastRequest(c)
	if err != nil {
		return err
	}

	events, cancel, err := h.svc.Stream(req)
	if err != nil {
		return apperr.ToFiber(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if err := w.Flush(); err != nil {
				// Client went away; the build keeps running for other
				// subscribers.
				return
			}
		}
	}))
	return nil
}

// audio handles GET /podcast-audio/:cache_key
func (h *PodcastHandler) audio(c *fiber.Ctx) error {
	wav, err := h.svc.Audio(c.UserContext(), c.Params("cache_key"))
	if err != nil {
		return apperr.ToFiber(err)
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(wav)
}

// script handles GET /podcast-script/:cache_key
func (h *PodcastHandler) script(c *fiber.Ctx) error {
	doc, err := h.svc.Script(c.UserContext(), c.Params("cache_key"))
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(doc)
}

// segment handles GET /podcast-segment/:cache_key/:index
func (h *PodcastHandler) segment(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "segment index must be a non-negative integer")
	}

	wav, err := h.svc.Segment(c.UserContext(), c.Params("cache_key"), index)
	if err != nil {
		return apperr.ToFiber(err)
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(wav)
}

// cached handles GET /cached-podcasts?limit=N
func (h *PodcastHandler) cached(c *fiber.Ctx) error {
	entries := h.svc.Cached()
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return c.JSON(fiber.Map{
		"count":    len(entries),
		"podcasts": entries,
	})
}

// stats handles GET /storage-stats
func (h *PodcastHandler) stats(c *fiber.Ctx) error {
	stats, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(stats)
}

// cleanup handles DELETE /cleanup-old-files?days_old=7
func (h *PodcastHandler) cleanup(c *fiber.Ctx) error {
	days := c.QueryInt("days_old", 7)
	if days < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "days_old must be non-negative")
	}

	removed, err := h.svc.CleanupOlderThan(c.UserContext(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(fiber.Map{
		"removed":  removed,
		"days_old": days,
	})
}
