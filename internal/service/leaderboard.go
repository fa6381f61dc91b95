package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/ingest"
	"github.com/sakif/intake-tracker/internal/model"
	"github.com/sakif/intake-tracker/internal/repository"
)

// leaderboardConcurrency caps parallel ledger reads.
const leaderboardConcurrency = 8

// LeaderboardService ranks users by calories logged in a month.
type LeaderboardService struct {
	store  repository.KVStore
	logger *slog.Logger
}

func NewLeaderboardService(store repository.KVStore, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{store: store, logger: logger}
}

type userTotal struct {
	user     string
	calories float64
	days     int
	ok       bool
}

// Leaderboard loads every ledger concurrently and ranks users by total
// calories in the given UTC month, highest first. Users with no days in the
// month are left out. Equal totals share a rank and are ordered by name.
//
// A ledger that vanished between listing and reading, or that is corrupted,
// is skipped. Any store failure aborts the whole board.
func (s *LeaderboardService) Leaderboard(ctx context.Context, year int, month time.Month) (model.Leaderboard, error) {
	keys, err := s.store.List(ctx, "")
	if err != nil {
		return model.Leaderboard{}, fmt.Errorf("listing users: %w", err)
	}

	users := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, repository.PresenceKeyPrefix) {
			users = append(users, k)
		}
	}

	// Each goroutine writes only its own slot, so no mutex is needed.
	totals := make([]userTotal, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(leaderboardConcurrency)
	for i, user := range users {
		g.Go(func() error {
			blob, err := s.store.Get(gctx, user)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ledger, err := ingest.DecodeLedger(user, blob)
			if err != nil {
				s.logger.Warn("skipping corrupted ledger on leaderboard",
					slog.String("user", user),
					slog.String("error", err.Error()),
				)
				return nil
			}
			calories, days := ingest.MonthlyCalories(ledger, year, month)
			totals[i] = userTotal{user: user, calories: calories, days: days, ok: days > 0}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Leaderboard{}, fmt.Errorf("loading ledgers: %w", err)
	}

	ranked := make([]userTotal, 0, len(totals))
	for _, t := range totals {
		if t.ok {
			ranked = append(ranked, t)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].calories != ranked[j].calories {
			return ranked[i].calories > ranked[j].calories
		}
		return ranked[i].user < ranked[j].user
	})

	entries := make([]model.LeaderboardEntry, len(ranked))
	for i, t := range ranked {
		rank := i + 1
		if i > 0 && t.calories == ranked[i-1].calories {
			rank = entries[i-1].Rank
		}
		entries[i] = model.LeaderboardEntry{
			Rank:          rank,
			User:          t.user,
			TotalCalories: decimal.NewFromFloat(t.calories).StringFixed(2),
			Days:          t.days,
		}
	}

	return model.Leaderboard{
		Month:   fmt.Sprintf("%04d-%02d", year, int(month)),
		Entries: entries,
	}, nil
}
