// Package redis implements repository.KVStore on a Redis server.
//
// Use this driver when more than one server process shares the same data:
// the relay's presence entries and every user's ledger then live in one place.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/repository"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

var _ repository.KVStore = (*Store)(nil)

// Store wraps a go-redis client.
type Store struct {
	client *redis.Client
}

// New connects to the Redis server described by url
// (e.g. "redis://localhost:6379/0") and verifies it with PING.
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client. Tests use it with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperror.NotFound("key", key)
		}
		return "", apperror.Unavailable("get", err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return apperror.Unavailable("put", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return apperror.Unavailable("delete", err)
	}
	return nil
}

// List walks the keyspace with SCAN rather than KEYS, so a large keyspace
// never blocks the server. SCAN may return a key more than once; duplicates
// are dropped before sorting.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, apperror.Unavailable("list", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\', '^', '-':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
