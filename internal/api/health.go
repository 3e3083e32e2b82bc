package api

import (
	"net/http"
	"time"

	"github.com/mercasmart/catalog-search/internal/api/respond"
)

// HealthReporter exposes aggregated dependency health.
type HealthReporter interface {
	IsHealthy() bool
	Components() map[string]bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health HealthReporter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(h HealthReporter) *HealthHandler { return &HealthHandler{health: h} }

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	var components map[string]bool
	if h.health != nil {
		if h.health.IsHealthy() {
			status = "healthy"
		}
		components = h.health.Components()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
