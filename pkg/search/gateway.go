package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gateway funnels all channel-scoped searches through one provider,
// sharing its cache, retry behavior, and a global concurrency gate.
type Gateway struct {
	provider   Provider
	cache      Cache
	ttl        time.Duration
	maxResults int
	logger     *slog.Logger
	gate       *semaphore.Weighted
}

func NewGateway(provider Provider, cache Cache, ttl time.Duration, concurrency int, logger *slog.Logger) *Gateway {
	if concurrency <= 0 {
		concurrency = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider:   provider,
		cache:      cache,
		ttl:        ttl,
		maxResults: 8,
		logger:     logger,
		gate:       semaphore.NewWeighted(int64(concurrency)),
	}
}

// Search runs one channel-scoped query, consulting the cache first.
// Results are tagged with the channel as their source.
func (g *Gateway) Search(ctx context.Context, query string, channel Channel) ([]Result, error) {
	if g.cache != nil {
		if cached, hit, err := g.cache.Get(ctx, query, channel); err != nil {
			g.logger.Warn("Cache lookup failed", "query", query, "channel", channel, "error", err)
		} else if hit {
			g.logger.Debug("Cache hit", "query", query, "channel", channel)
			return cached, nil
		}
	}

	if err := g.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	results, err := g.provider.Search(ctx, scopedQuery(query, channel), g.maxResults)
	g.gate.Release(1)
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Source = channel
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, query, channel, results, g.ttl); err != nil {
			g.logger.Warn("Cache store failed", "query", query, "channel", channel, "error", err)
		}
	}
	return results, nil
}

// MultiSearch runs all queries concurrently, tolerating individual
// failures. The combined result set is merged in input-list order, not
// arrival order, and deduplicated by URL with first-seen wins, so the
// output is deterministic for replay. It returns the merged results and
// the number of failed search tasks.
func (g *Gateway) MultiSearch(ctx context.Context, queries []Query) ([]Result, int) {
	type task struct {
		results []Result
		err     error
	}
	tasks := make([]task, len(queries))

	done := make(chan int, len(queries))
	for i, q := range queries {
		go func(i int, q Query) {
			results, err := g.Search(ctx, q.Text, q.Channel)
			tasks[i] = task{results: results, err: err}
			done <- i
		}(i, q)
	}
	for range queries {
		<-done
	}

	failed := 0
	seen := make(map[string]bool)
	var merged []Result
	for i, t := range tasks {
		if t.err != nil {
			failed++
			g.logger.Warn("Search task failed", "query", queries[i].Text, "channel", queries[i].Channel, "error", t.err)
			continue
		}
		for _, r := range t.results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
		}
	}
	return merged, failed
}
