package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/repository"
	"github.com/sakif/intake-tracker/internal/respond"
)

// healthCheckKey is never written; reading it proves the store answers.
const healthCheckKey = "healthz"

// HealthHandler reports liveness and whether the store is reachable.
type HealthHandler struct {
	store repository.KVStore
}

func NewHealthHandler(store repository.KVStore) *HealthHandler {
	return &HealthHandler{store: store}
}

// HandleHealth responds 200 {"status":"ok"} or 503 when the store fails.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	_, err := h.store.Get(ctx, healthCheckKey)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unavailable"})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
