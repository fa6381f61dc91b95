package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")

	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("store unavailable")
	ErrInference    = errors.New("inference failed")

	// Ingestion pipeline failures. ErrCorruptedLedger never reaches a caller of
	// the intake operation: the merge step recovers from it locally.
	ErrNoJSONFound         = errors.New("no JSON found in AI response")
	ErrMalformedAIResponse = errors.New("malformed AI response")
	ErrCorruptedLedger     = errors.New("corrupted ledger")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field (or pipeline stage) causing the error
	Cause   error  // Optional: underlying cause, kept for diagnostics
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized returns an AppError for a missing or wrong secret or ticket.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// RateLimited is returned when a caller exceeds a request budget.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// Unavailable wraps an I/O failure of the key-value store.
func Unavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("store %s failed", op),
		Cause:   cause,
	}
}

// InferenceFailed wraps a failed or timed-out call to the inference service.
func InferenceFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrInference,
		Message: "inference service call failed",
		Cause:   cause,
	}
}

// NoJSONFound reports that extraction produced no JSON candidate at all.
func NoJSONFound() *AppError {
	return &AppError{
		Err:     ErrNoJSONFound,
		Message: "AI response contained no JSON object",
	}
}

// MalformedAIResponse reports a candidate that failed at the given pipeline
// stage (parse, code-block-parse, json-extraction or schema-validation).
func MalformedAIResponse(stage string, cause error) *AppError {
	return &AppError{
		Err:     ErrMalformedAIResponse,
		Message: fmt.Sprintf("AI response failed at %s", stage),
		Field:   stage,
		Cause:   cause,
	}
}

// CorruptedLedger reports a stored blob that is not valid JSON.
func CorruptedLedger(user string, cause error) *AppError {
	return &AppError{
		Err:     ErrCorruptedLedger,
		Message: fmt.Sprintf("stored ledger for %s is corrupted", user),
		Cause:   cause,
	}
}
