package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/g0da-s/vettd/pkg/search"
)

// SearchCache is the PostgreSQL implementation of search.Cache, so
// cached search results survive restarts and are shared across
// instances.
type SearchCache struct {
	db *PostgresDB
}

func NewSearchCache(db *PostgresDB) *SearchCache {
	return &SearchCache{db: db}
}

func (c *SearchCache) Get(ctx context.Context, query string, channel search.Channel) ([]search.Result, bool, error) {
	var raw []byte
	err := c.db.Pool.QueryRow(ctx,
		"SELECT results FROM search_cache WHERE cache_key = $1 AND expires_at > NOW()",
		search.CacheKey(query, channel)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read search cache: %w", err)
	}

	var results []search.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return results, true, nil
}

func (c *SearchCache) Set(ctx context.Context, query string, channel search.Channel, results []search.Result, ttl time.Duration) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode search results: %w", err)
	}

	upsert := `
		INSERT INTO search_cache (cache_key, channel, query, results, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW() + $5::interval)
		ON CONFLICT (cache_key) DO UPDATE
		SET results = EXCLUDED.results, created_at = NOW(), expires_at = EXCLUDED.expires_at
	`
	_, err = c.db.Pool.Exec(ctx, upsert, search.CacheKey(query, channel), channel, query, raw, ttl)
	if err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

// Prune deletes expired cache rows and returns how many were removed.
func (c *SearchCache) Prune(ctx context.Context) (int, error) {
	tag, err := c.db.Pool.Exec(ctx, "DELETE FROM search_cache WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to prune search cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
