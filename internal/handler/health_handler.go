package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prn-tf/medstore/internal/repository"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports liveness and credential store health.
type HealthHandler struct {
	database repository.DatabaseHealth
	version  string
}

// NewHealthHandler creates a new HealthHandler. database may be nil.
func NewHealthHandler(database repository.DatabaseHealth, version string) *HealthHandler {
	return &HealthHandler{database: database, version: version}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Version: h.version}
	status := http.StatusOK

	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp.Database = "ok"
		if err := h.database.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
