package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Validation Runs Table. Each research agent writes its own
	// column, so concurrent completions never clobber each other.
	runsQuery := `
		CREATE TABLE IF NOT EXISTS validation_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			idea TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			current_stage INT NOT NULL DEFAULT 0,
			pain_research JSONB,
			competitor_research JSONB,
			market_intelligence JSONB,
			graveyard_research JSONB,
			synthesis JSONB,
			error TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, runsQuery); err != nil {
		return fmt.Errorf("failed to create validation_runs table: %w", err)
	}

	// 2. Run Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS run_logs (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES validation_runs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create run_logs table: %w", err)
	}

	// 3. Search Cache Table
	cacheQuery := `
		CREATE TABLE IF NOT EXISTS search_cache (
			cache_key TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			query TEXT NOT NULL,
			results JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`
	if _, err := db.Pool.Exec(ctx, cacheQuery); err != nil {
		return fmt.Errorf("failed to create search_cache table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id)"); err != nil {
		return fmt.Errorf("failed to create index on run_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_validation_runs_created_at ON validation_runs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on validation_runs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at)"); err != nil {
		return fmt.Errorf("failed to create index on search_cache: %w", err)
	}

	return nil
}
