package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler answers liveness and version queries.
type HealthHandler struct {
	version        string
	started        time.Time
	summaryEnabled bool
	logger         *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, summaryEnabled bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		version:        version,
		started:        time.Now(),
		summaryEnabled: summaryEnabled,
		logger:         logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":          "healthy",
		"version":         h.version,
		"uptime":          time.Since(h.started).Round(time.Second).String(),
		"summary_enabled": h.summaryEnabled,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}
