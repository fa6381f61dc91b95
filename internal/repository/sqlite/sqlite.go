// Package sqlite implements repository.KVStore on an embedded SQLite file.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// For a single-node deployment of the intake tracker that is all the key-value
// store we need: no Redis to run, and ":memory:" makes tests trivial.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler and
// cross-compilation becomes painful. modernc.org/sqlite is pure Go.
//
// KEY-VALUE ON A RELATIONAL ENGINE:
// The whole schema is one table, kv(key PRIMARY KEY, value). Put is an
// UPSERT, List is a prefix scan over the primary key index.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The sqlite package's init() registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.KVStore.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/intake.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (great for tests, lost on close)
//
// IN-MEMORY CAVEAT:
// Every new connection to ":memory:" opens a brand-new, empty database.
// database/sql is a pool, so we pin it to a single connection in that case:
// otherwise a Put on one connection would be invisible to a Get on another.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query, which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) mode allows concurrent reads WHILE a write is
	// happening. Intake writes and leaderboard reads overlap all the time.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Wait up to 5s for a competing writer instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
//
// ALWAYS DEFER CLOSE:
//
//	db, err := sqlite.New("data/intake.db")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// For now, CREATE TABLE IF NOT EXISTS is safe: it won't error if the table exists.
func (db *DB) migrate() error {
	// One table: the application stores opaque JSON blobs by key.
	// updated_at is informational only; nothing reads it back.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}

	return nil
}
