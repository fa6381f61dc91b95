// Package respond writes JSON responses for handlers and middleware alike.
//
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "ledger not found with id alice"}
//
// so a client always knows which fields to expect, whatever the status.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/intake-tracker/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// JSON sends a JSON response with the given status code. Headers and status
// go out before the body; changes after the first Write are ignored.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Error maps a domain error to an HTTP status and sends it.
//
//	ErrValidation          → 400 validation_error
//	ErrUnauthorized        → 401 unauthorized
//	ErrNotFound            → 404 not_found
//	ErrRateLimited         → 429 rate_limited
//	ErrNoJSONFound         → 502 no_json_found
//	ErrMalformedAIResponse → 502 malformed_ai_response
//	ErrInference           → 502 inference_failed
//	ErrUnavailable         → 503 store_unavailable
//	anything else          → 500 internal_error
//
// Upstream and storage failures get a fixed message: their causes can carry
// model output or connection strings, which stay in the server log.
func Error(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		JSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	message := appErr.Message

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrRateLimited):
		status, errorType = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrNoJSONFound):
		status, errorType = http.StatusBadGateway, "no_json_found"
		message = "The AI response did not contain any nutrition data"
	case errors.Is(err, apperror.ErrMalformedAIResponse):
		status, errorType = http.StatusBadGateway, "malformed_ai_response"
		message = "The AI response could not be understood"
	case errors.Is(err, apperror.ErrInference):
		status, errorType = http.StatusBadGateway, "inference_failed"
		message = "The AI service is unavailable, try again later"
	case errors.Is(err, apperror.ErrUnavailable):
		status, errorType = http.StatusServiceUnavailable, "store_unavailable"
		message = "Storage is temporarily unavailable"
	default:
		message = "An internal error occurred"
	}

	JSON(w, status, ErrorResponse{Error: errorType, Message: message})
}
