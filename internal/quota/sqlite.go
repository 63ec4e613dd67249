package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore persists usage counters in SQLite. The bounded increment is a
// single UPSERT with a conditional UPDATE, so concurrent admissions for the
// same (identity, day) serialize inside the database and can never exceed
// the limit.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open database, creating its schema if
// needed. Counter rows are never deleted; they back historical reporting.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS quota_usage (
			identity TEXT NOT NULL,
			day TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (identity, day)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("quota: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) IncrementIfUnder(ctx context.Context, key, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		// Unlimited: unconditional increment, usage still recorded.
		var used int
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO quota_usage (identity, day, count) VALUES (?, ?, 1)
			ON CONFLICT (identity, day) DO UPDATE SET count = count + 1
			RETURNING count
		`, key, day).Scan(&used)
		if err != nil {
			return 0, false, err
		}
		return used, true, nil
	}

	var used int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (identity, day, count) VALUES (?, ?, 1)
		ON CONFLICT (identity, day) DO UPDATE SET count = count + 1
			WHERE quota_usage.count < ?
		RETURNING count
	`, key, day, limit).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	// The conditional UPDATE matched no row: the counter is already at or
	// over the limit. Read it back for the rejection payload.
	current, readErr := s.Count(ctx, key, day)
	if readErr != nil {
		return 0, false, readErr
	}
	return current, false, nil
}

func (s *SQLiteStore) Count(ctx context.Context, key, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM quota_usage WHERE identity = ? AND day = ?`, key, day,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SQLiteSettings persists runtime-mutable settings in SQLite.
type SQLiteSettings struct {
	db *sql.DB
}

// NewSQLiteSettings creates the settings table if needed.
func NewSQLiteSettings(db *sql.DB) (*SQLiteSettings, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("quota: create settings schema: %w", err)
	}
	return &SQLiteSettings{db: db}, nil
}

func (s *SQLiteSettings) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = ?`, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("quota: setting %q is not an integer: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteSettings) SetInt(ctx context.Context, key string, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, strconv.Itoa(value))
	return err
}
