package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/intake-tracker/internal/handler"
)

func TestHealthHandler_HandleHealth(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		h := handler.NewHealthHandler(newTestStore(t))
		rr := do(http.HandlerFunc(h.HandleHealth), http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("store closed", func(t *testing.T) {
		store := newTestStore(t)
		store.Close()
		h := handler.NewHealthHandler(store)
		rr := do(http.HandlerFunc(h.HandleHealth), http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
