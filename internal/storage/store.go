// Package storage persists per-request usage records in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage (
	id               TEXT PRIMARY KEY,
	service          TEXT NOT NULL,
	kind             TEXT NOT NULL,
	requested_model  TEXT NOT NULL,
	served_model     TEXT NOT NULL,
	streaming        INTEGER NOT NULL,
	status           TEXT NOT NULL,
	duration_ns      INTEGER NOT NULL,
	prompt_tokens    INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage (created_at);
CREATE INDEX IF NOT EXISTS idx_usage_service ON usage (service);
`

// UsageRecord captures one completed (or failed) dispatch for the
// usage log.
type UsageRecord struct {
	ID               string        `json:"id"`
	Service          string        `json:"service"`
	Kind             string        `json:"kind"`
	RequestedModel   string        `json:"requested_model"`
	ServedModel      string        `json:"served_model"`
	Streaming        bool          `json:"streaming"`
	Status           string        `json:"status"`
	Duration         time.Duration `json:"duration_ns"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Store wraps the SQLite usage database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordUsage inserts one usage row.
func (s *Store) RecordUsage(ctx context.Context, rec UsageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (
			id, service, kind, requested_model, served_model,
			streaming, status, duration_ns, prompt_tokens,
			completion_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Service, rec.Kind, rec.RequestedModel, rec.ServedModel,
		rec.Streaming, rec.Status, int64(rec.Duration), rec.PromptTokens,
		rec.CompletionTokens, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, kind, requested_model, served_model,
		       streaming, status, duration_ns, prompt_tokens,
		       completion_tokens, created_at
		FROM usage ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var dur int64
		if err := rows.Scan(
			&rec.ID, &rec.Service, &rec.Kind, &rec.RequestedModel,
			&rec.ServedModel, &rec.Streaming, &rec.Status, &dur,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		rec.Duration = time.Duration(dur)
		out = append(out, rec)
	}
	return out, rows.Err()
}
