package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort   string
	AppEnv    string // "development" switches to console logging at debug level
	AuthToken string // Shared secret for X-Auth-Token (empty = no auth, dev mode)

	// Supabase storage
	SupabaseURL        string
	SupabaseServiceKey string
	StorageBucket      string

	// Rendering
	WorkDir             string // Scratch space for per-request workspaces
	FFmpegPath          string
	FFprobePath         string
	RenderTimeout       time.Duration // Wall clock budget for one render request
	FetchTimeout        time.Duration
	UploadTimeout       time.Duration
	MaxFetchConcurrency int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		AppEnv:              getEnv("APP_ENV", "production"),
		AuthToken:           getEnv("AUTH_TOKEN", ""),
		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:  getEnv("SUPABASE_SERVICE_KEY", ""),
		StorageBucket:       getEnv("STORAGE_BUCKET", "videos"),
		WorkDir:             getEnv("WORK_DIR", filepath.Join(os.TempDir(), "storyreel")),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		RenderTimeout:       getEnvDuration("RENDER_TIMEOUT", 10*time.Minute),
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		UploadTimeout:       getEnvDuration("UPLOAD_TIMEOUT", 3*time.Minute),
		MaxFetchConcurrency: getEnvInt("MAX_FETCH_CONCURRENCY", 4),
	}

	if cfg.RenderTimeout <= 0 {
		return nil, fmt.Errorf("RENDER_TIMEOUT must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if cfg.UploadTimeout <= 0 {
		return nil, fmt.Errorf("UPLOAD_TIMEOUT must be positive")
	}
	if cfg.MaxFetchConcurrency < 1 {
		return nil, fmt.Errorf("MAX_FETCH_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// StorageConfigured reports whether upload credentials are present. Missing
// credentials are not fatal at boot: renders still run, publishing fails.
func (c *Config) StorageConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
