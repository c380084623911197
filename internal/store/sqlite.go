package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// migrations is an ordered list of SQL statements applied on startup.
// Each entry is idempotent (IF NOT EXISTS) so re-running is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		username   TEXT PRIMARY KEY,
		password   TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id          TEXT PRIMARY KEY,
		peer_addr   TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		client_os   TEXT NOT NULL DEFAULT '',
		username    TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		ended_at    TEXT,
		outcome     TEXT NOT NULL DEFAULT ''
	)`,
}

// SQLiteStore implements Store using a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path and runs
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time.

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- Credentials ---

func (s *SQLiteStore) UpsertCredential(ctx context.Context, username, password string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (username, password, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET password = excluded.password, updated_at = excluded.updated_at`,
		username, password, now, now)
	return err
}

func (s *SQLiteStore) GetPassword(ctx context.Context, username string) (string, error) {
	var password string
	err := s.db.QueryRowContext(ctx,
		`SELECT password FROM credentials WHERE username = ?`, username).Scan(&password)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return password, nil
}

func (s *SQLiteStore) DeleteCredential(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username)
	return err
}

// --- Connection history ---

func (s *SQLiteStore) RecordConnection(ctx context.Context, rec *ConnectionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (id, peer_addr, client_name, client_os, username, started_at, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PeerAddr, rec.ClientName, rec.ClientOS, rec.Username,
		rec.StartedAt.UTC().Format(time.RFC3339), rec.Outcome)
	return err
}

func (s *SQLiteStore) FinishConnection(ctx context.Context, id string, endedAt time.Time, outcome string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connections SET ended_at = ?, outcome = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339), outcome, id)
	return err
}

func (s *SQLiteStore) ListConnections(ctx context.Context, limit int) ([]*ConnectionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, peer_addr, client_name, client_os, username, started_at, ended_at, outcome
		 FROM connections ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var recs []*ConnectionRecord
	for rows.Next() {
		var rec ConnectionRecord
		var started string
		var ended sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PeerAddr, &rec.ClientName, &rec.ClientOS,
			&rec.Username, &started, &ended, &rec.Outcome); err != nil {
			return nil, err
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := time.Parse(time.RFC3339, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			rec.EndedAt = &t
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
