package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/colombo-hci/slopdetect/internal/api/handler"
	mw "github.com/colombo-hci/slopdetect/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	detectHandler *handler.DetectHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS for the browser extension
	r.Use(mw.CORS)

	// Health endpoint (no auth)
	r.Get("/health", healthHandler.Live)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Post("/detect", detectHandler.Detect)
		r.Get("/stats", healthHandler.Stats)
	})

	return r
}
