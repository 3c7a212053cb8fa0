package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/bobarin/reelsmith/internal/models"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	MetricsEnabled     bool

	// Database (optional job audit log)
	DatabaseURL string

	// Redis (empty = in-process queue). Tasks go to a list scoped to
	// InstanceID and are consumed by this process's own worker.
	RedisURL   string
	InstanceID string

	// Supabase (optional artifact publishing)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Video providers
	RunwayKey    string
	StabilityKey string
	PexelsKey    string
	XAIAPIKey    string
	GeminiKey    string // Veo video generation and Gemini image analysis
	VeoModel     string

	// Script writing and image analysis
	OpenAIKey string

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Cartesia (secondary TTS provider)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Tuning
	ProviderTimeout      time.Duration
	PollMaxAttempts      int
	PollInterval         time.Duration
	SegmentConcurrency   int
	WorkDir              string
	SuitabilityTablePath string // YAML override of the built-in suitability table

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the environment without validating it.
func FromEnv() *Config {
	return &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		MetricsEnabled:        getEnvBool("METRICS_ENABLED", true),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		InstanceID:            getEnv("INSTANCE_ID", defaultInstanceID()),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reelsmith-renders"),
		RunwayKey:             getEnv("RUNWAYML_API_KEY", ""),
		StabilityKey:          getEnv("STABILITY_API_KEY", ""),
		PexelsKey:             getEnv("PEXELS_API_KEY", ""),
		XAIAPIKey:             getEnv("XAI_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		ProviderTimeout:       getEnvDuration("PROVIDER_TIMEOUT", 6*time.Minute),
		PollMaxAttempts:       getEnvInt("POLL_MAX_ATTEMPTS", 60),
		PollInterval:          getEnvDuration("POLL_INTERVAL", 5*time.Second),
		SegmentConcurrency:    getEnvInt("SEGMENT_CONCURRENCY", 3),
		WorkDir:               getEnv("WORK_DIR", os.TempDir()),
		SuitabilityTablePath:  getEnv("SUITABILITY_TABLE_PATH", ""),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}
}

// Validate rejects configurations that cannot run a single video job.
func (c *Config) Validate() error {
	creds := c.ProviderCredentials()
	hasVideo := false
	for _, id := range []models.ProviderID{models.ProviderRunway, models.ProviderStability, models.ProviderPexels, models.ProviderXAI, models.ProviderVeo} {
		if creds[id] {
			hasVideo = true
			break
		}
	}
	if !hasVideo {
		return fmt.Errorf("at least one of RUNWAYML_API_KEY, STABILITY_API_KEY, PEXELS_API_KEY, XAI_API_KEY or GEMINI_API_KEY is required")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}
	if c.SegmentConcurrency < 1 {
		return fmt.Errorf("SEGMENT_CONCURRENCY must be at least 1, got %d", c.SegmentConcurrency)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}

	if c.RedisURL != "" && !c.WorkerEnabled {
		return fmt.Errorf("REDIS_URL requires WORKER_ENABLED=true: job status is tracked by the process that runs the worker")
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	return nil
}

// ProviderCredentials reports which providers have credentials.
func (c *Config) ProviderCredentials() map[models.ProviderID]bool {
	return map[models.ProviderID]bool{
		models.ProviderRunway:     c.RunwayKey != "",
		models.ProviderStability:  c.StabilityKey != "",
		models.ProviderPexels:     c.PexelsKey != "",
		models.ProviderXAI:        c.XAIAPIKey != "",
		models.ProviderVeo:        c.GeminiKey != "",
		models.ProviderOpenAI:     c.OpenAIKey != "",
		models.ProviderGemini:     c.GeminiKey != "",
		models.ProviderElevenLabs: c.ElevenLabsKey != "",
		models.ProviderCartesia:   c.CartesiaKey != "",
		models.ProviderHybrid:     c.RunwayKey != "" || c.PexelsKey != "",
	}
}

// PublishEnabled reports whether finished artifacts are uploaded.
func (c *Config) PublishEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
