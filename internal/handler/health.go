package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks that a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db   Pinger
	nats func() string
}

// NewHealthHandler creates a new health handler. natsStatus may be nil when
// the journal is disabled.
func NewHealthHandler(db Pinger, natsStatus func() string) *HealthHandler {
	if natsStatus == nil {
		natsStatus = func() string { return "disabled" }
	}
	return &HealthHandler{db: db, nats: natsStatus}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. NATS is optional: only a database failure makes
// the service not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	natsStatus := h.nats()
	if err := h.db(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not ready",
			"reason":   "database unreachable",
			"database": "error",
			"nats":     natsStatus,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "ok",
		"nats":     natsStatus,
	})
}
