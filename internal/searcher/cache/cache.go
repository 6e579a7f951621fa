// Package cache keeps rendered search results in Redis.
//
// Entries are namespaced by a generation counter that lives in Redis next to
// them. Invalidation bumps the counter, so every searcher replica stops
// reading the old entries within one refresh interval. The previous
// generation is unlinked right away and anything missed ages out through the
// TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/redis"
)

const (
	keyPrefix     = "search:"
	generationKey = keyPrefix + "generation"
	// generationRefresh bounds how long a replica may keep serving a
	// generation another replica already retired.
	generationRefresh = time.Second
)

// Store is the part of *pkgredis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetInt64(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
}

// Stats is what the cache stats endpoint reports.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Generation int64 `json:"generation"`
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	genMu      sync.Mutex
	generation int64
	genAt      time.Time
}

// New wraps store. m may be nil.
func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
		now:     time.Now,
	}
}

// Key digests the parts of a request that change its result. Callers pass
// the canonical query text first.
func Key(parts ...string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "\x00")))
}

// currentGeneration returns the cached counter, re-reading it from the store
// once per refresh interval. A store error keeps the last known value.
func (c *QueryCache) currentGeneration(ctx context.Context) int64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if !c.genAt.IsZero() && c.now().Sub(c.genAt) < generationRefresh {
		return c.generation
	}
	gen, err := c.store.GetInt64(ctx, generationKey)
	if err != nil {
		c.logger.Warn("reading cache generation failed", "error", err)
		return c.generation
	}
	c.generation, c.genAt = gen, c.now()
	return gen
}

func storeKey(gen int64, key string) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, gen, key)
}

// Get returns the cached result for key in the current generation.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	full := storeKey(c.currentGeneration(ctx), key)
	data, err := c.store.Get(ctx, full)
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.logger.Warn("cache read failed", "key", full, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", full, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// Set stores result under key. Failures are logged and otherwise ignored.
func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("encoding cache entry failed", "key", key, "error", err)
		return
	}
	full := storeKey(c.currentGeneration(ctx), key)
	if err := c.store.Set(ctx, full, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", full, "error", err)
	}
}

// GetOrCompute serves key from the cache or runs compute once for all
// concurrent callers of the same key. The boolean reports a hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (*executor.SearchResult, error)) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*executor.SearchResult), false, nil
}

// Invalidate retires the current generation and unlinks its entries.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	gen, err := c.store.Incr(ctx, generationKey)
	if err != nil {
		return fmt.Errorf("bumping cache generation: %w", err)
	}
	c.genMu.Lock()
	c.generation, c.genAt = gen, c.now()
	c.genMu.Unlock()

	removed, err := c.store.DeleteMatching(ctx, fmt.Sprintf("%s%d:*", keyPrefix, gen-1))
	if err != nil {
		// The bump already hides the old entries; the TTL collects them.
		c.logger.Warn("unlinking retired cache entries failed", "generation", gen-1, "error", err)
	}
	c.logger.Info("cache invalidated", "generation", gen, "entries_removed", removed)
	return nil
}

func (c *QueryCache) Stats() Stats {
	c.genMu.Lock()
	gen := c.generation
	c.genMu.Unlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Generation: gen}
}
