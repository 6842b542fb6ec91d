package handler

import (
	"net/http"

	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  store.Store
	broker pubsub.Broker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(st store.Store, broker pubsub.Broker) *HealthHandler {
	return &HealthHandler{store: st, broker: broker}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unavailable",
		})
		return
	}
	if err := h.broker.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "notification channel unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
