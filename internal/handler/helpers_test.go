package handler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sakif/intake-tracker/internal/inference"
	"github.com/sakif/intake-tracker/internal/metrics"
	"github.com/sakif/intake-tracker/internal/repository/sqlite"
	"github.com/sakif/intake-tracker/internal/service"
)

// MockInference returns a canned completion without any network.
type MockInference struct {
	Response   string
	ReturnErr  error
	CapturedUp string
}

func (m *MockInference) Run(_ context.Context, _, userPrompt string) (*inference.Completion, error) {
	m.CapturedUp = userPrompt
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &inference.Completion{Response: m.Response}, nil
}

// monday is 2024-05-20 12:00 UTC.
var monday = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

const eggFragment = `{"2024-05-20T08:00:00Z":{"foods":[{"name":"egg","calories":"78","protein":"6.3","carbs":"0.6","fat":"5.3","amount":"1 large"}],"summary":{"calories":"78","protein":"6.3","carbs":"0.6","fat":"5.3"}}}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestIntakeService(t *testing.T, store *sqlite.DB, llm inference.Client) *service.IntakeService {
	t.Helper()
	prompt, err := inference.NewPrompt("", time.UTC)
	if err != nil {
		t.Fatalf("NewPrompt: %v", err)
	}
	return service.NewIntakeService(store, llm, prompt, metrics.New(), testLogger(), service.IntakeOptions{
		Now: func() time.Time { return monday },
	})
}
