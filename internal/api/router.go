package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handler, authToken string, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	// Liveness probes (public, no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		// Auth only when a token is configured (development mode runs open)
		if authToken != "" {
			r.Use(TokenAuth(authToken))
		}

		r.Post("/create-video", h.CreateVideo)
	})

	return r
}
