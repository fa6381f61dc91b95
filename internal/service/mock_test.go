package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/inference"
	"github.com/sakif/intake-tracker/internal/metrics"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// mockStore implements repository.KVStore in memory. failGet/failPut make
// the next call of that kind return ErrUnavailable, which a real store only
// does when the disk or network is gone.

type mockStore struct {
	mu      sync.Mutex
	data    map[string]string
	puts    int
	deletes int
	failGet bool
	failPut bool
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", apperror.Unavailable("get", errors.New("connection reset"))
	}
	v, ok := m.data[key]
	if !ok {
		return "", apperror.NotFound("key", key)
	}
	return v, nil
}

func (m *mockStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return apperror.Unavailable("put", errors.New("disk full"))
	}
	m.puts++
	m.data[key] = value
	return nil
}

func (m *mockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *mockStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// =========================================================================
// MOCK INFERENCE CLIENT
// =========================================================================

// mockLLM returns a canned completion and records what it was asked.
type mockLLM struct {
	mu         sync.Mutex
	response   string
	stream     bool
	err        error
	block      bool // wait for ctx to end, to exercise the timeout
	calls      int
	lastSystem string
	lastUser   string
}

func (m *mockLLM) Run(ctx context.Context, systemPrompt, userPrompt string) (*inference.Completion, error) {
	m.mu.Lock()
	m.calls++
	m.lastSystem, m.lastUser = systemPrompt, userPrompt
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.stream {
		return &inference.Completion{Stream: io.NopCloser(strings.NewReader(m.response))}, nil
	}
	return &inference.Completion{Response: m.response}, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

// fixedNow is Monday 2024-05-20 12:00 UTC.
var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestIntakeService(t *testing.T, opts IntakeOptions) (*IntakeService, *mockStore, *mockLLM) {
	t.Helper()
	store := newMockStore()
	llm := &mockLLM{}
	prompt, err := inference.NewPrompt("", time.UTC)
	if err != nil {
		t.Fatalf("NewPrompt: %v", err)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	svc := NewIntakeService(store, llm, prompt, metrics.New(), testLogger(), opts)
	return svc, store, llm
}
