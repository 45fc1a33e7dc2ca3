package handler

import (
	"net/http"

	"github.com/colombo-hci/slopdetect/internal/registry"
)

// HealthHandler serves liveness and observability endpoints.
type HealthHandler struct {
	registry *registry.MediaRegistry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reg *registry.MediaRegistry) *HealthHandler {
	return &HealthHandler{registry: reg}
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats handles GET /api/v1/stats with registry stage counts.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"registry": h.registry.Stats(),
	})
}
