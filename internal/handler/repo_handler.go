package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gitbridge/internal/apperr"
	"gitbridge/internal/diagram"
	"gitbridge/internal/ingest"
	"gitbridge/internal/models"
)

// RepoFetcher is the slice of the ingest layer the handlers need.
type RepoFetcher interface {
	Fetch(ctx context.Context, repoURL string) (*ingest.Snapshot, error)
}

// RepoInfoGetter fetches repository metadata by owner/name.
type RepoInfoGetter interface {
	GetRepoInfo(ctx context.Context, owner, name string) (models.RepoInfo, error)
}

// RepoHandler wires HTTP → ingest and diagram services.
type RepoHandler struct {
	fetcher  RepoFetcher
	info     RepoInfoGetter
	diagrams diagram.Service
}

// NewRepoHandler creates a new RepoHandler.
func NewRepoHandler(fetcher RepoFetcher, info RepoInfoGetter, diagrams diagram.Service) *RepoHandler {
	return &RepoHandler{fetcher: fetcher, info: info, diagrams: diagrams}
}

// Register mounts the repository parsing and diagram routes.
func (h *RepoHandler) Register(r fiber.Router) {
	r.Post("/parse-repo", h.parseRepo)
	r.Post("/generate-diagram", h.generateDiagram)
	r.Get("/repo-info/:owner/:name", h.repoInfo)
}

// parseRepo handles POST /parse-repo  { "repo_url": "..." }
func (h *RepoHandler) parseRepo(c *fiber.Ctx) error {
	var req models.ParseRepoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "repo_url is required")
	}

	snap, err := h.fetcher.Fetch(c.UserContext(), req.RepoURL)
	if err != nil {
		return apperr.ToFiber(err)
	}

	return c.JSON(models.ParseRepoResponse{
		FileTree:      ingest.FormatTree(snap.Tree),
		ReadmeContent: snap.Readme,
		RepoInfo:      snap.Info,
	})
}

// generateDiagram handles POST /generate-diagram  { "file_tree": "...", "readme_content": "..." }
func (h *RepoHandler) generateDiagram(c *fiber.Ctx) error {
	var req models.GenerateDiagramRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.FileTree) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "file_tree is required")
	}

	resp, err := h.diagrams.Generate(c.UserContext(), req.FileTree, req.ReadmeContent)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(resp)
}

// repoInfo handles GET /repo-info/:owner/:name
func (h *RepoHandler) repoInfo(c *fiber.Ctx) error {
	owner := c.Params("owner")
	name := c.Params("name")
	if owner == "" || name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "owner and name are required")
	}

	info, err := h.info.GetRepoInfo(c.UserContext(), owner, name)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(info)
}
