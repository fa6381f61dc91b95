package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/intake-tracker/internal/handler"
	"github.com/sakif/intake-tracker/internal/model"
	"github.com/sakif/intake-tracker/internal/repository/sqlite"
	"github.com/sakif/intake-tracker/internal/respond"
)

// intakeRouter mounts the handler the way the server does so chi URL params
// resolve.
func intakeRouter(h *handler.IntakeHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/intakes", h.HandleLog)
	r.Get("/api/users", h.HandleUsers)
	r.Get("/api/users/{user}/intakes", h.HandleLedger)
	r.Delete("/api/users/{user}/intakes", h.HandleReset)
	r.Delete("/api/users/{user}/intakes/{date}", h.HandleDeleteDay)
	r.Get("/api/users/{user}/summary", h.HandleSummary)
	r.Get("/api/users/{user}/today", h.HandleToday)
	return r
}

func setupIntake(t *testing.T, llm *MockInference) (http.Handler, *sqlite.DB) {
	t.Helper()
	store := newTestStore(t)
	svc := newTestIntakeService(t, store, llm)
	return intakeRouter(handler.NewIntakeHandler(svc, testLogger())), store
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) respond.ErrorResponse {
	t.Helper()
	var res respond.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func TestIntakeHandler_HandleLog(t *testing.T) {
	t.Run("valid intake", func(t *testing.T) {
		llm := &MockInference{Response: "Here you go:\n```json\n" + eggFragment + "\n```"}
		router, store := setupIntake(t, llm)

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var res model.Ledger
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		require.Contains(t, res, "2024-05-20T08:00:00Z")
		assert.Equal(t, "78", res["2024-05-20T08:00:00Z"].Summary.Calories)
		assert.Equal(t, "one egg", llm.CapturedUp)

		blob, err := store.Get(context.Background(), "alice")
		require.NoError(t, err)
		assert.Contains(t, blob, `"egg"`)
	})

	t.Run("invalid request body", func(t *testing.T) {
		router, _ := setupIntake(t, &MockInference{})

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("empty prompt", func(t *testing.T) {
		llm := &MockInference{}
		router, _ := setupIntake(t, llm)

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":""}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, llm.CapturedUp)
	})

	t.Run("no JSON in AI response", func(t *testing.T) {
		router, store := setupIntake(t, &MockInference{Response: "I cannot help with that."})

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "no_json_found", decodeError(t, rr).Error)
		users, err := store.List(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("malformed AI response hides the cause", func(t *testing.T) {
		router, _ := setupIntake(t, &MockInference{Response: `{"2024-05-20": {"foods": "lots"}}`})

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		res := decodeError(t, rr)
		assert.Equal(t, "malformed_ai_response", res.Error)
		assert.NotContains(t, res.Message, "lots")
	})

	t.Run("inference failure", func(t *testing.T) {
		router, _ := setupIntake(t, &MockInference{ReturnErr: errors.New("connection refused")})

		rr := do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "inference_failed", decodeError(t, rr).Error)
	})
}

func TestIntakeHandler_Reads(t *testing.T) {
	router, _ := setupIntake(t, &MockInference{Response: eggFragment})
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`).Code)

	t.Run("users", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"users":["alice"]}`, rr.Body.String())
	})

	t.Run("ledger", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/alice/intakes", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, eggFragment, rr.Body.String())
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/bob/intakes", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeError(t, rr).Error)
	})

	t.Run("monthly summary", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/alice/summary?month=2024-05", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var res model.MonthlySummary
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "2024-05", res.Month)
		require.Len(t, res.DailyIntakes, 1)
		assert.Equal(t, "78.00", res.OverallSummary.Total.Calories)
		assert.Equal(t, "78.00", res.OverallSummary.Average.Calories)
	})

	t.Run("bad month", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/alice/summary?month=May", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("today", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/alice/today", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var res []model.DatedRecord
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		require.Len(t, res, 1)
		assert.Equal(t, "Breakfast", res[0].Foods[0].MealType)
	})
}

func TestIntakeHandler_Deletes(t *testing.T) {
	t.Run("delete one day with an escaped key", func(t *testing.T) {
		router, store := setupIntake(t, &MockInference{Response: eggFragment})
		require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`).Code)

		rr := do(router, http.MethodDelete, "/api/users/alice/intakes/2024-05-20T08%3A00%3A00Z", "")

		assert.Equal(t, http.StatusNoContent, rr.Code)
		_, err := store.Get(context.Background(), "alice")
		assert.Error(t, err, "deleting the only day removes the ledger")
	})

	t.Run("delete unknown day", func(t *testing.T) {
		router, _ := setupIntake(t, &MockInference{Response: eggFragment})
		require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`).Code)

		rr := do(router, http.MethodDelete, "/api/users/alice/intakes/2024-05-21", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("reset", func(t *testing.T) {
		router, _ := setupIntake(t, &MockInference{Response: eggFragment})
		require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/intakes", `{"user":"alice","prompt":"one egg"}`).Code)

		assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/users/alice/intakes", "").Code)
		assert.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, "/api/users/alice/intakes", "").Code)
	})
}

func TestIntakeHandler_PercentInUserName(t *testing.T) {
	router, store := setupIntake(t, &MockInference{})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a%41", eggFragment))

	t.Run("plain escape decodes once", func(t *testing.T) {
		rr := do(router, http.MethodGet, "/api/users/a%2541/intakes", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, eggFragment, rr.Body.String())
	})

	t.Run("does not reach a different user", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "aA", `{}`))

		rr := do(router, http.MethodGet, "/api/users/a%2541/intakes", "")

		assert.JSONEq(t, eggFragment, rr.Body.String())
	})

	t.Run("same name alongside an escaped date", func(t *testing.T) {
		rr := do(router, http.MethodDelete, "/api/users/a%2541/intakes/2024-05-20T08%3A00%3A00Z", "")

		assert.Equal(t, http.StatusNoContent, rr.Code)
		_, err := store.Get(ctx, "a%41")
		assert.Error(t, err)
	})
}
