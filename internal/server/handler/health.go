package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	signing bool
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. signing reports whether the
// service holds a signing key, so operators can tell a provisional
// deployment from an attesting one at a glance.
func NewHealthHandler(signing bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{signing: signing, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"signing":   h.signing,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
