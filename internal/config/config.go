// Package config centralises all environment / flag configuration for the API.
// It should be imported only by `cmd/server` (and test code). Business-logic
// layers receive an already-built Config instance via dependency-injection.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime option the server needs.
// Keep it flat and simple—prefer primitive types over embedding structs.
type Config struct {
	// Network
	Port          string
	PublicBaseURL string

	// LLM provider
	GoogleProjectID    string
	GoogleLocation     string
	GeminiModel        string
	ModelContextTokens int

	// External services
	GitHubToken      string
	ElevenLabsAPIKey string
	STTBaseURL       string
	STTAPIKey        string

	// Storage
	StorageRoot string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	// Timeouts
	RepoFetchTimeout time.Duration
	LLMTimeout       time.Duration
	TTSTimeout       time.Duration
	STTTimeout       time.Duration
	PodcastTimeout   time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	LogLevel string
}

// UseS3 reports whether object-store credentials are present; storage backend
// selection is configuration, never a runtime branch in consumers.
func (c Config) UseS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

// Load parses the environment (and an optional .env file) into Config.
// It panics on missing critical variables so mis-configurations fail fast.
func Load() Config {
	// godotenv.Load() is a no-op if .env doesn't exist—safe in production.
	_ = godotenv.Load()

	return Config{
		Port:          getEnv("PORT", "8000"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8000"),

		GoogleProjectID:    must("GOOGLE_PROJECT_ID"),
		GoogleLocation:     getEnv("GOOGLE_LOCATION", "us-central1"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		ModelContextTokens: getInt("MODEL_CONTEXT_TOKENS", 32_000),

		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		STTBaseURL:       getEnv("STT_BASE_URL", "https://api.openai.com/v1"),
		STTAPIKey:        os.Getenv("STT_API_KEY"),

		StorageRoot: getEnv("STORAGE_ROOT", "./storage"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:    getBool("S3_USE_SSL", true),

		RepoFetchTimeout: getDuration("REPO_FETCH_TIMEOUT_SEC", 30),
		LLMTimeout:       getDuration("LLM_TIMEOUT_SEC", 60),
		TTSTimeout:       getDuration("TTS_TIMEOUT_SEC", 30),
		STTTimeout:       getDuration("STT_TIMEOUT_SEC", 30),
		PodcastTimeout:   getDuration("PODCAST_TIMEOUT_SEC", 600),
		ReadTimeout:      getDuration("READ_TIMEOUT_SEC", 30),
		WriteTimeout:     getDuration("WRITE_TIMEOUT_SEC", 660),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// must fetches a required env var or terminates the program.
func must(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("env var %s is required", key)
	}
	return val
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt reads an integer from env, falling back to defaultVal.
func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

// getBool reads a boolean from env, falling back to defaultVal.
func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid %s=%q; using default %t", key, v, defaultVal)
	}
	return defaultVal
}

// getDuration reads an integer (seconds) from env, falling back to defaultSec.
func getDuration(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Printf("invalid %s=%q; using default %ds", key, v, defaultSec)
	}
	return time.Duration(defaultSec) * time.Second
}
