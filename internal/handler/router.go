package handler

import (
	"github.com/gofiber/fiber/v2"

	"gitbridge/internal/diagram"
	"gitbridge/internal/storage"
)

// RegisterRoutes mounts every API route on the app. Routes live at the root
// so the paths match what the web client calls.
func RegisterRoutes(app *fiber.App,
	fetcher RepoFetcher,
	info RepoInfoGetter,
	diagrams diagram.Service,
	podcasts PodcastService,
	voices VoiceService,
	store storage.Backend,
	model string,
) {
	NewRepoHandler(fetcher, info, diagrams).Register(app)
	NewPodcastHandler(podcasts).Register(app)
	NewVoiceHandler(voices).Register(app)
	NewHealthHandler(store, model).Register(app)
}
