// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a
// single file. No separate database server to install, configure, or
// manage. Perfect for single-server deployments, and ":memory:" gives
// every test its own throwaway database.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a
// C compiler installed and cross-compilation becomes painful.
// modernc.org/sqlite is a pure Go translation of the SQLite C code — no C
// compiler needed, works everywhere Go works.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql" — a generic interface for
// SQL databases, driven by registered drivers. Key types:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Tx      — a transaction
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The underscore import is a "side-effect only" import. The sqlite
	// package's init() function registers itself with database/sql as a
	// driver named "sqlite"; after this import, sql.Open("sqlite", ...)
	// knows how to talk to SQLite.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
//
// WHY WRAP sql.DB IN A STRUCT?
// 1. We can attach methods to it (Create, GetByID, etc.)
// 2. It implements the repository interfaces from internal/repository
// 3. We control the lifecycle (New creates it, Close destroys it)
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/recap.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (great for tests, lost on close)
//
// CONNECTION POOL:
// sql.Open() does NOT actually open a connection — it just creates a pool
// manager. We call db.Ping() to force an immediate connection and verify it
// works, so a bad path surfaces here and not on the first query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) mode:
	// Default SQLite locks the entire database during writes. WAL mode
	// allows concurrent reads WHILE a write is happening — critical for a
	// web server where multiple requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards
	// compatibility). We turn them on so summaries.user_id actually
	// enforces that every summary references an existing user.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
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
// Wherever you call New(), immediately defer Close(). This ensures the WAL
// is flushed and the file lock released even if a panic occurs.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema.
//
// MIGRATIONS:
// Embedded CREATE TABLE IF NOT EXISTS statements are idempotent and fine at
// this scale; versioned migration tooling is deliberately out of scope.
//
// SCHEMA NOTES:
//   - users.credits has a CHECK constraint as a last line of defence: even
//     a buggy UPDATE can never drive a balance negative.
//   - summaries.key_points holds a JSON-encoded string array. Title, key
//     points, and full summary are separate columns — the write→read round
//     trip is exact, no flattened text blob to re-parse.
//   - summaries.video_ref is indexed (not UNIQUE): it is the global cache
//     lookup key, but concurrent first-time generations of the same video
//     may legitimately insert twice.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			image_url     TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT 'local',
			github_id     INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT NOT NULL DEFAULT '',
			credits       INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
			ON users(github_id) WHERE github_id != 0;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id),
			video_ref    TEXT NOT NULL,
			content      TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			key_points   TEXT NOT NULL DEFAULT '[]',
			full_summary TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_summaries_user_created
			ON summaries(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_summaries_video_ref
			ON summaries(video_ref);
	`)
	if err != nil {
		return fmt.Errorf("creating summaries table: %w", err)
	}

	return nil
}
