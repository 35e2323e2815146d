package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache stores search responses keyed by (normalized query, channel).
type Cache interface {
	Get(ctx context.Context, query string, channel Channel) ([]Result, bool, error)
	Set(ctx context.Context, query string, channel Channel, results []Result, ttl time.Duration) error
}

// CacheKey hashes the channel and the normalized query text.
func CacheKey(query string, channel Channel) string {
	sum := sha256.Sum256([]byte(string(channel) + "\x00" + normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

type memoryEntry struct {
	results   []Result
	expiresAt time.Time
}

// MemoryCache is the in-process cache used by the CLI and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, query string, channel Channel) ([]Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[CacheKey(query, channel)]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, query string, channel Channel, results []Result, ttl time.Duration) error {
	stored := make([]Result, len(results))
	copy(stored, results)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[CacheKey(query, channel)] = memoryEntry{
		results:   stored,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}
