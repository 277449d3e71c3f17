// Package db provides SQLite persistence for pagechat: view marks, the
// event log and assistant transcripts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Config configures the database connection.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int
}

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
	path string
}

// migration is one schema step. Steps are applied in order and recorded in
// schema_migrations.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS view_marks (
				page_id TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				viewed_at TEXT NOT NULL,
				PRIMARY KEY (page_id, conversation_id)
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				type TEXT NOT NULL,
				conversation_id TEXT,
				payload_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events(timestamp, id)`,
			`CREATE INDEX IF NOT EXISTS events_conversation_idx ON events(conversation_id, timestamp)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS assistant_turns (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				image_mime TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS assistant_turns_session_idx ON assistant_turns(session_id, seq)`,
		},
	},
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", cfg.Path, busy)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// OpenInMemory opens a private in-memory database, mainly for tests.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: sqlDB, path: ":memory:"}, nil
}

// Path returns the database path.
func (db *DB) Path() string {
	return db.path
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		applied++
	}
	return applied, nil
}

// Transaction runs fn in a transaction, committing on success.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
