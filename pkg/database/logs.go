package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogEntry is one persisted log record for a validation run.
type LogEntry struct {
	ID        int             `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// LogStore persists and reads per-run logs.
type LogStore struct {
	db *PostgresDB
}

func NewLogStore(db *PostgresDB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Insert(ctx context.Context, runID uuid.UUID, ts time.Time, level, message string, metadata json.RawMessage) error {
	query := `
		INSERT INTO run_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Pool.Exec(ctx, query, runID, ts, level, message, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

func (s *LogStore) ListByRun(ctx context.Context, runID uuid.UUID, limit int) ([]LogEntry, error) {
	if limit < 1 {
		limit = 200
	}
	query := `
		SELECT id, run_id, timestamp, level, message, metadata
		FROM run_logs
		WHERE run_id = $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := s.db.Pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.Level, &e.Message, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run logs: %w", err)
	}
	return entries, nil
}
