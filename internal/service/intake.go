// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, orchestrates, owns the clock
//	Repository (data layer)  → opaque key-value storage
//
// Services take interfaces (repository.KVStore, inference.Client), never
// concrete types, so tests inject in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/inference"
	"github.com/sakif/intake-tracker/internal/ingest"
	"github.com/sakif/intake-tracker/internal/metrics"
	"github.com/sakif/intake-tracker/internal/model"
	"github.com/sakif/intake-tracker/internal/repository"
)

const (
	MaxUserNameLength       = 64
	MaxPromptLength         = 4000
	DefaultInferenceTimeout = 60 * time.Second
)

// IntakeOptions tunes an IntakeService. The zero value is usable.
type IntakeOptions struct {
	// Location is the target zone for weekday and meal-type views. nil = UTC.
	Location *time.Location

	// InferenceTimeout bounds one inference call including stream draining.
	InferenceTimeout time.Duration

	// SerializeUserWrites makes intake, reset and delete-by-date for the same
	// user run one at a time within this process. Off by default: two
	// concurrent intakes for one user then race and the last write wins.
	SerializeUserWrites bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

// IntakeService runs the ingestion pipeline and serves the ledger views.
type IntakeService struct {
	store   repository.KVStore
	llm     inference.Client
	prompt  *inference.Prompt
	metrics *metrics.Metrics
	logger  *slog.Logger

	loc     *time.Location
	timeout time.Duration
	locks   *userLocks
	now     func() time.Time
}

// NewIntakeService wires the pipeline's collaborators together.
func NewIntakeService(
	store repository.KVStore,
	llm inference.Client,
	prompt *inference.Prompt,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts IntakeOptions,
) *IntakeService {
	s := &IntakeService{
		store:   store,
		llm:     llm,
		prompt:  prompt,
		metrics: m,
		logger:  logger,
		loc:     opts.Location,
		timeout: opts.InferenceTimeout,
		now:     opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.timeout <= 0 {
		s.timeout = DefaultInferenceTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.SerializeUserWrites {
		s.locks = newUserLocks()
	}
	return s
}

// Log runs one intake: infer, extract, validate, merge, re-summarize, store.
//
// The returned ledger holds only the date-key(s) this intake touched, in
// their merged and re-summarized form. That is also the wire shape of the
// intake response.
//
// A stored blob that fails to decode is discarded: the new fragment replaces
// it and the request still succeeds.
func (s *IntakeService) Log(ctx context.Context, user, prompt string) (model.Ledger, error) {
	user, err := ValidateUser(user)
	if err != nil {
		s.metrics.RecordIntake(metrics.OutcomeInvalid)
		return nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		s.metrics.RecordIntake(metrics.OutcomeInvalid)
		return nil, apperror.ValidationFailed("prompt", "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		s.metrics.RecordIntake(metrics.OutcomeInvalid)
		return nil, apperror.ValidationFailed("prompt",
			fmt.Sprintf("prompt must be %d characters or less", MaxPromptLength))
	}

	raw, err := s.infer(ctx, prompt)
	if err != nil {
		s.metrics.RecordIntake(metrics.OutcomeInference)
		s.logger.Error("inference failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	fragment, err := s.parse(user, raw)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(user)
	defer unlock()

	existing, err := s.loadForMerge(ctx, user)
	if err != nil {
		s.metrics.RecordIntake(metrics.OutcomeStoreError)
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	merged := ingest.Merge(existing, fragment)
	ingest.Resummarize(merged)

	if err := s.save(ctx, user, merged); err != nil {
		s.metrics.RecordIntake(metrics.OutcomeStoreError)
		return nil, err
	}

	touched := make(model.Ledger, len(fragment))
	for key := range fragment {
		touched[key] = merged[key]
	}

	s.metrics.RecordIntake(metrics.OutcomeOK)
	s.logger.Info("intake logged",
		slog.String("user", user),
		slog.Int("dates", len(touched)),
		slog.Int("days_stored", len(merged)),
	)
	return touched, nil
}

// infer runs the inference call under the configured timeout and drains the
// result to text before returning.
func (s *IntakeService) infer(ctx context.Context, prompt string) (string, error) {
	system, err := s.prompt.Render(s.now())
	if err != nil {
		return "", fmt.Errorf("building system prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() { s.metrics.RecordInference(time.Since(start).Seconds()) }()

	completion, err := s.llm.Run(ctx, system, prompt)
	if err != nil {
		return "", apperror.InferenceFailed(err)
	}
	text, err := inference.Drain(completion)
	if err != nil {
		return "", apperror.InferenceFailed(err)
	}
	return text, nil
}

// parse runs extraction and validation. The raw completion is logged on
// failure because it is the only way to see what the model actually said.
func (s *IntakeService) parse(user, raw string) (model.Fragment, error) {
	candidate, err := ingest.Extract(raw)
	if err != nil {
		s.metrics.RecordIntake(metrics.OutcomeNoJSON)
		s.logger.Warn("no JSON in inference response",
			slog.String("user", user),
			slog.String("response", truncate(raw, 500)),
		)
		return nil, err
	}

	fragment, err := ingest.ValidateFragment(candidate)
	if err != nil {
		s.metrics.RecordIntake(metrics.OutcomeMalformed)
		s.logger.Warn("malformed inference response",
			slog.String("user", user),
			slog.String("stage", string(candidate.Source)),
			slog.String("error", err.Error()),
			slog.String("candidate", truncate(candidate.Text, 500)),
		)
		return nil, err
	}
	return fragment, nil
}

// loadForMerge returns the stored ledger, nil when there is none, and nil
// when the stored blob is corrupted.
func (s *IntakeService) loadForMerge(ctx context.Context, user string) (model.Ledger, error) {
	ledger, err := s.load(ctx, user)
	switch {
	case err == nil:
		return ledger, nil
	case errors.Is(err, apperror.ErrNotFound):
		return nil, nil
	case errors.Is(err, apperror.ErrCorruptedLedger):
		s.logger.Warn("discarding corrupted ledger", slog.String("user", user), slog.String("error", err.Error()))
		return nil, nil
	default:
		return nil, err
	}
}

// load reads and decodes a user's ledger. Errors: ErrNotFound,
// ErrCorruptedLedger or ErrUnavailable.
func (s *IntakeService) load(ctx context.Context, user string) (model.Ledger, error) {
	blob, err := s.store.Get(ctx, user)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("ledger", user)
		}
		return nil, err
	}
	ledger, err := ingest.DecodeLedger(user, blob)
	if err != nil {
		s.metrics.CorruptedLedgers.Inc()
		return nil, err
	}
	return ledger, nil
}

// loadForRead is load for the read-only views: a corrupted blob is reported
// as NotFound after a warning.
func (s *IntakeService) loadForRead(ctx context.Context, user string) (model.Ledger, error) {
	ledger, err := s.load(ctx, user)
	if errors.Is(err, apperror.ErrCorruptedLedger) {
		s.logger.Warn("stored ledger is corrupted", slog.String("user", user), slog.String("error", err.Error()))
		return nil, apperror.NotFound("ledger", user)
	}
	return ledger, err
}

func (s *IntakeService) save(ctx context.Context, user string, ledger model.Ledger) error {
	blob, err := ingest.EncodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	if err := s.store.Put(ctx, user, blob); err != nil {
		s.logger.Error("failed to store ledger",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("storing ledger: %w", err)
	}
	return nil
}

// Ledger returns a user's whole stored ledger.
func (s *IntakeService) Ledger(ctx context.Context, user string) (model.Ledger, error) {
	user, err := ValidateUser(user)
	if err != nil {
		return nil, err
	}
	return s.loadForRead(ctx, user)
}

// Users lists every user with a stored ledger, sorted.
func (s *IntakeService) Users(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, repository.PresenceKeyPrefix) {
			continue
		}
		users = append(users, k)
	}
	return users, nil
}

// Reset deletes a user's whole ledger. A user with nothing stored is
// NotFound.
func (s *IntakeService) Reset(ctx context.Context, user string) error {
	user, err := ValidateUser(user)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(user)
	defer unlock()

	if _, err := s.store.Get(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("ledger", user)
		}
		return err
	}
	if err := s.store.Delete(ctx, user); err != nil {
		return fmt.Errorf("deleting ledger: %w", err)
	}

	s.logger.Info("ledger reset", slog.String("user", user))
	return nil
}

// DeleteDay removes exactly one date-key from a user's ledger. Removing the
// last key removes the ledger itself. A missing user or date-key is NotFound
// and leaves the store untouched.
func (s *IntakeService) DeleteDay(ctx context.Context, user, dateKey string) error {
	user, err := ValidateUser(user)
	if err != nil {
		return err
	}
	if strings.TrimSpace(dateKey) == "" {
		return apperror.ValidationFailed("date", "date is required")
	}

	unlock := s.locks.lock(user)
	defer unlock()

	ledger, err := s.loadForRead(ctx, user)
	if err != nil {
		return err
	}
	if _, ok := ledger[dateKey]; !ok {
		return apperror.NotFound("record", dateKey)
	}
	delete(ledger, dateKey)

	if len(ledger) == 0 {
		if err := s.store.Delete(ctx, user); err != nil {
			return fmt.Errorf("deleting ledger: %w", err)
		}
	} else if err := s.save(ctx, user, ledger); err != nil {
		return err
	}

	s.logger.Info("record deleted",
		slog.String("user", user),
		slog.String("date", dateKey),
		slog.Int("days_left", len(ledger)),
	)
	return nil
}

// MonthlySummary aggregates a user's ledger over one UTC month.
func (s *IntakeService) MonthlySummary(ctx context.Context, user string, year int, month time.Month) (model.MonthlySummary, error) {
	user, err := ValidateUser(user)
	if err != nil {
		return model.MonthlySummary{}, err
	}
	ledger, err := s.loadForRead(ctx, user)
	if err != nil {
		return model.MonthlySummary{}, err
	}
	return ingest.Monthly(ledger, year, month), nil
}

// Today returns every record logged on today's weekday, in the target zone,
// with meal types derived from each record's time.
func (s *IntakeService) Today(ctx context.Context, user string) ([]model.DatedRecord, error) {
	user, err := ValidateUser(user)
	if err != nil {
		return nil, err
	}
	ledger, err := s.loadForRead(ctx, user)
	if err != nil {
		return nil, err
	}
	return ingest.SameWeekday(ledger, s.now(), s.loc)
}

// ValidateUser trims and checks a user name. The name is the ledger's store
// key, so ':' (the namespace separator) is not allowed.
func ValidateUser(user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", apperror.ValidationFailed("user", "user is required")
	}
	if utf8.RuneCountInString(user) > MaxUserNameLength {
		return "", apperror.ValidationFailed("user",
			fmt.Sprintf("user must be %d characters or less", MaxUserNameLength))
	}
	if strings.ContainsRune(user, ':') {
		return "", apperror.ValidationFailed("user", "user must not contain ':'")
	}
	return user, nil
}

// truncate shortens s to at most n bytes plus an ellipsis, cutting on a
// rune boundary so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// userLocks is a mutex per user name. Entries are reference counted and
// dropped when the last holder unlocks. A nil *userLocks never blocks.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(user string) (unlock func()) {
	if l == nil {
		return func() {}
	}

	l.mu.Lock()
	ul, ok := l.locks[user]
	if !ok {
		ul = &userLock{}
		l.locks[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, user)
		}
		l.mu.Unlock()
	}
}
