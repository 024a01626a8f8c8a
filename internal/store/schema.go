package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Timestamps are
// stored as integer unix milliseconds so range scans order correctly.
var schemaStatements = []string{
	// User ids come from Overseerr; !verify creates or relinks the row.
	`CREATE TABLE IF NOT EXISTS users (
		id    INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		linked_at INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone
		ON users(phone) WHERE phone != ''`,

	`CREATE TABLE IF NOT EXISTS requests (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		email        TEXT    NOT NULL,
		title        TEXT    NOT NULL,
		type         TEXT    NOT NULL,
		media_id     INTEGER NOT NULL,
		status       TEXT    NOT NULL DEFAULT 'pending',
		requested_at INTEGER NOT NULL,
		due_at       INTEGER NOT NULL
	)`,

	// One live reminder per (user, media). Finished rows never block a
	// re-request of the same title.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending
		ON requests(email, type, media_id) WHERE status = 'pending'`,

	`CREATE INDEX IF NOT EXISTS idx_requests_email_status
		ON requests(email, status)`,

	`CREATE TABLE IF NOT EXISTS confirmations (
		message_id TEXT PRIMARY KEY,
		chat_id    TEXT    NOT NULL,
		context    TEXT    NOT NULL,
		expires_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS confirm_pointers (
		chat_id    TEXT PRIMARY KEY,
		message_id TEXT    NOT NULL,
		expires_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reminder_jobs (
		id         TEXT PRIMARY KEY,
		user_id    INTEGER NOT NULL,
		request_id INTEGER NOT NULL,
		fire_at    INTEGER NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		state      TEXT    NOT NULL DEFAULT 'waiting'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_reminder_jobs_fire
		ON reminder_jobs(state, fire_at)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}

	return nil
}
