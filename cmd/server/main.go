package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"gitbridge/internal/apperr"
	"gitbridge/internal/config"
	"gitbridge/internal/diagram"
	"gitbridge/internal/githubapi"
	"gitbridge/internal/handler"
	"gitbridge/internal/ingest"
	"gitbridge/internal/llm"
	"gitbridge/internal/middleware"
	"gitbridge/internal/podcast"
	"gitbridge/internal/storage"
	"gitbridge/internal/stt"
	"gitbridge/internal/tts"
	"gitbridge/internal/voice"
)

// main is the single entry-point for the REST API.
func main() {
	cfg := config.Load()
	if cfg.LogLevel == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	log.Printf("Configuration loaded:")
	log.Printf("  - Model: %s (%s/%s)", cfg.GeminiModel, cfg.GoogleProjectID, cfg.GoogleLocation)
	log.Printf("  - Storage: %s", storageLabel(cfg))

	ctx := context.Background()

	// Storage backend: object store when configured, local disk otherwise.
	var store storage.Backend
	var err error
	if cfg.UseS3() {
		store, err = storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	} else {
		store, err = storage.NewLocal(cfg.StorageRoot)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	index, err := storage.LoadIndex(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load podcast index: %v", err)
	}
	log.Printf("Podcast index loaded: %d entries", index.Len())

	// LLM client (Vertex AI, application default credentials). Each model
	// call gets its own LLMTimeout deadline.
	llmClient, err := llm.NewVertexClient(ctx, cfg.GoogleProjectID, cfg.GoogleLocation, cfg.GeminiModel, cfg.LLMTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer llmClient.Close()

	// Repository ingestion.
	github := githubapi.NewClient(cfg.GitHubToken, cfg.RepoFetchTimeout)
	ingestor := ingest.NewIngestor(github)

	// Speech providers.
	synth := tts.NewClient(cfg.ElevenLabsAPIKey, cfg.TTSTimeout)
	transcriber := stt.NewClient(cfg.STTBaseURL, cfg.STTAPIKey, cfg.STTTimeout)

	// Services.
	diagrams := diagram.NewService(llmClient)
	podcasts := podcast.NewService(
		ingestor,
		podcast.NewScriptGenerator(llmClient),
		podcast.NewBatcher(synth),
		store,
		index,
		cfg.PublicBaseURL,
		cfg.ModelContextTokens,
		cfg.PodcastTimeout,
	)
	voices := voice.NewService(ingestor, llmClient, synth, transcriber, cfg.ModelContextTokens)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: errorHandler,
		BodyLimit:    32 * 1024 * 1024, // voice clips arrive as raw WAV
	})

	// Add middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.Logging())

	// Register routes
	handler.RegisterRoutes(app, ingestor, github, diagrams, podcasts, voices, store, cfg.GeminiModel)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func storageLabel(cfg config.Config) string {
	if cfg.UseS3() {
		return "s3 (" + cfg.S3Endpoint + "/" + cfg.S3Bucket + ")"
	}
	return "local (" + cfg.StorageRoot + ")"
}

// errorHandler renders every error as { "error": "..." } with the status the
// error carries.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := err.Error()
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		msg = fe.Message
	} else if fe, ok := apperr.ToFiber(err).(*fiber.Error); ok {
		code, msg = fe.Code, fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
