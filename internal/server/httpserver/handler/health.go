// Package handler provides HTTP request handlers for KeyDesk.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
)

// readyTimeout bounds the store ping of a readiness probe.
const readyTimeout = 2 * time.Second

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. It reports unready while the store
// cannot be reached.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Code, "store unreachable", nil)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
