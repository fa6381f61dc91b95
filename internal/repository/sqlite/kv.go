package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops satisfying repository.KVStore, this line fails to compile.
var _ repository.KVStore = (*DB)(nil)

// Get returns the value stored under key.
//
// sql.ErrNoRows is translated into the app's NotFound error so the service
// layer never has to know it is talking to SQL.
func (db *DB) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("key", key)
		}
		return "", apperror.Unavailable("get", err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
//
// UPSERT:
// INSERT ... ON CONFLICT(key) DO UPDATE is SQLite's "insert or replace the
// value" in a single statement, so there is no SELECT-then-INSERT window.
func (db *DB) Put(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return apperror.Unavailable("put", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return apperror.Unavailable("delete", err)
	}
	return nil
}

// List returns every key starting with prefix, in ascending order.
//
// WHY substr() AND NOT LIKE?
// LIKE treats '%' and '_' in the prefix as wildcards; user names may contain
// them. Comparing the first len(prefix) characters is exact.
func (db *DB) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key FROM kv
		 WHERE substr(key, 1, length(?)) = ?
		 ORDER BY key ASC`,
		prefix, prefix,
	)
	if err != nil {
		return nil, apperror.Unavailable("list", err)
	}
	// CRITICAL: always close rows when done!
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apperror.Unavailable("list", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("list", err)
	}
	return keys, nil
}
