package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                   UUID PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT '',
		username             TEXT NOT NULL UNIQUE,
		email                TEXT NOT NULL UNIQUE,
		hashed_password      TEXT,
		provider             TEXT NOT NULL DEFAULT 'local',
		provider_id          TEXT UNIQUE,
		avatar               TEXT NOT NULL DEFAULT '',
		total_solved         INTEGER NOT NULL DEFAULT 0 CHECK (total_solved >= 0),
		easy_solved          INTEGER NOT NULL DEFAULT 0 CHECK (easy_solved >= 0),
		medium_solved        INTEGER NOT NULL DEFAULT 0 CHECK (medium_solved >= 0),
		hard_solved          INTEGER NOT NULL DEFAULT 0 CHECK (hard_solved >= 0),
		notification_prefs   JSONB NOT NULL DEFAULT '{}'::jsonb,
		early_access_until   TIMESTAMPTZ,
		founding_badge_level TEXT,
		shared_at            TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id           UUID PRIMARY KEY,
		user_id      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		problem_name TEXT NOT NULL CHECK (problem_name <> ''),
		difficulty   TEXT NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
		status       TEXT NOT NULL CHECK (status IN ('accepted', 'wrong')),
		topic        TEXT NOT NULL DEFAULT 'General',
		time_taken   TEXT NOT NULL DEFAULT '00:00',
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_user_submitted ON submissions (user_id, submitted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS practice_sessions (
		id              UUID PRIMARY KEY,
		user_id         UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		question        TEXT NOT NULL,
		language        TEXT NOT NULL DEFAULT '',
		time_taken      TEXT NOT NULL DEFAULT '00:00',
		hints_used      INTEGER NOT NULL DEFAULT 0 CHECK (hints_used >= 0),
		solution_viewed BOOLEAN NOT NULL DEFAULT false,
		date            TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_practice_sessions_user_date ON practice_sessions (user_id, date DESC)`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("database.Migrate: begin: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("database.Migrate: statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("database.Migrate: commit: %w", err)
	}
	return len(schema), nil
}
