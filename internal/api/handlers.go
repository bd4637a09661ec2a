package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hlynes/storyreel/internal/models"
	"github.com/hlynes/storyreel/internal/pipeline"
	"github.com/hlynes/storyreel/internal/services"
	"github.com/hlynes/storyreel/internal/storage"
)

// VideoRenderer runs the assembly pipeline for one request.
type VideoRenderer interface {
	Run(ctx context.Context, req *models.VideoRequest) (*pipeline.Result, error)
}

type Handler struct {
	renderer      VideoRenderer
	renderTimeout time.Duration
	log           zerolog.Logger
}

func NewHandler(renderer VideoRenderer, renderTimeout time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		renderer:      renderer,
		renderTimeout: renderTimeout,
		log:           logger,
	}
}

// CreateVideo handles POST /create-video. The render runs synchronously; the
// response carries the public URL of the published video.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	// Client disconnect or the render deadline cancels everything downstream,
	// including in-flight downloads and encoder subprocesses.
	ctx := r.Context()
	if h.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.renderTimeout)
		defer cancel()
	}

	result, err := h.renderer.Run(ctx, &req)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Msg("render failed")
		respondError(w, http.StatusInternalServerError, err.Error(), errorDetails(err))
		return
	}

	respondJSON(w, http.StatusOK, models.VideoResponse{
		Success: true,
		URL:     result.URL,
		Size:    result.Size,
		Frames:  result.Frames,
		FPS:     result.FPS,
		Width:   result.Width,
		Height:  result.Height,
	})
}

// errorDetails pulls captured diagnostic text out of pipeline failures.
func errorDetails(err error) string {
	var encErr *services.EncodeError
	if errors.As(err, &encErr) {
		return encErr.Output
	}
	var upErr *storage.UploadError
	if errors.As(err, &upErr) {
		return upErr.Body
	}
	return ""
}

// Root handles GET /, the liveness text callers poll before submitting work.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Storyreel video API is running"))
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, models.ErrorResponse{Error: message, Details: details})
}
