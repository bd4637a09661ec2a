package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hlynes/storyreel/internal/api"
	"github.com/hlynes/storyreel/internal/config"
	"github.com/hlynes/storyreel/internal/pipeline"
	"github.com/hlynes/storyreel/internal/services"
	"github.com/hlynes/storyreel/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg.AppEnv)
	logger.Info().Str("env", cfg.AppEnv).Msg("Starting Storyreel API")

	// Renders go through external tools; warn early if they are missing
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		logger.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found, renders will fail")
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		logger.Warn().Str("path", cfg.FFprobePath).Msg("ffprobe not found, duration probing disabled")
	}

	if !cfg.StorageConfigured() {
		logger.Warn().Msg("SUPABASE_URL or SUPABASE_SERVICE_KEY not set, publishing will fail")
	}

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.WorkDir).Msg("Failed to create work dir")
	}

	// Wire up the render pipeline
	fetcher := services.NewFetcher(cfg.FetchTimeout, cfg.MaxFetchConcurrency, logger)
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, logger)
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket, cfg.UploadTimeout, logger)
	renderer := pipeline.New(fetcher, ffmpegSvc, stor, cfg.WorkDir, logger)

	// Create API handler
	handler := api.NewHandler(renderer, cfg.RenderTimeout, logger)
	router := api.NewRouter(handler, cfg.AuthToken, logger)

	if cfg.AuthToken != "" {
		logger.Info().Msg("Token authentication enabled")
	} else {
		logger.Warn().Msg("No AUTH_TOKEN set, API is unprotected (dev mode)")
	}

	// Responses are held open for the duration of a render, so the write
	// timeout must outlive the render budget.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      cfg.RenderTimeout + time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func newLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	var out io.Writer = os.Stdout
	if env == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
