// GO TESTING BASICS:
// 1. Test files MUST end in _test.go; Go's tooling auto-discovers them
// 2. Test functions MUST start with "Test" and take *testing.T as the only param
// 3. Same package as the code being tested (so we can access unexported stuff)
// 4. Run with: go test ./internal/apperror/ -v  (-v = verbose, shows each test name)
package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// One slice of cases, one loop of assertions. Adding a case = adding a struct.
func TestErrorsIs(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("ledger", "alice"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("user", "user is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("ledger", "alice"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Unavailable matches its sentinel",
			err:       Unavailable("get", cause),
			target:    ErrUnavailable,
			wantMatch: true,
		},
		{
			name:      "Unavailable matches its cause",
			err:       Unavailable("get", cause),
			target:    cause,
			wantMatch: true,
		},
		{
			name:      "InferenceFailed keeps a deadline cause visible",
			err:       InferenceFailed(context.DeadlineExceeded),
			target:    context.DeadlineExceeded,
			wantMatch: true,
		},
		{
			name:      "MalformedAIResponse wraps ErrMalformedAIResponse",
			err:       MalformedAIResponse("schema-validation", cause),
			target:    ErrMalformedAIResponse,
			wantMatch: true,
		},
		{
			name:      "NoJSONFound is not a MalformedAIResponse",
			err:       NoJSONFound(),
			target:    ErrMalformedAIResponse,
			wantMatch: false,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("logging intake: %w", NoJSONFound()),
			target:    ErrNoJSONFound,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("ledger", "alice"),
			wantMessage: "ledger not found with id alice",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("prompt", "prompt is required"),
			wantMessage: "prompt is required",
		},
		{
			name:        "cause is appended to the message",
			err:         MalformedAIResponse("json-extraction", errors.New("unexpected end of JSON")),
			wantMessage: "AI response failed at json-extraction: unexpected end of JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("ledger", "alice")
	unwrapped := err.Unwrap()

	if len(unwrapped) != 1 || unwrapped[0] != ErrNotFound {
		t.Errorf("Unwrap() = %v, want [%v]", unwrapped, ErrNotFound)
	}
}

func TestMalformedAIResponseStage(t *testing.T) {
	// The stage travels in Field so diagnostics can tell which step failed.
	err := MalformedAIResponse("code-block-parse", errors.New("bad"))

	var appErr *AppError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &appErr) {
		t.Fatal("errors.As did not find *AppError")
	}
	if appErr.Field != "code-block-parse" {
		t.Errorf("Field = %q, want %q", appErr.Field, "code-block-parse")
	}
}
