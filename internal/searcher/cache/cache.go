// Package cache memoises search results in Redis. Concurrent identical
// queries are collapsed with singleflight so one execution serves all
// waiters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/strata-search/strata/internal/searcher/executor"
	"github.com/strata-search/strata/pkg/metrics"
	"github.com/strata-search/strata/pkg/redis"
)

const keyPrefix = "strata:search:"

// Loader executes a search on a cache miss.
type Loader func(ctx context.Context) (*executor.Result, error)

// QueryCache caches executor results keyed by the rewritten query string
// and the result limit. Profiled executions bypass the cache entirely
// since their timings are request-specific.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	m      *metrics.Metrics
	logger *slog.Logger
}

// New builds a QueryCache. A nil redis client disables caching and every
// Get falls through to its loader.
func New(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		m:      m,
		logger: slog.Default().With("component", "query_cache"),
	}
}

// Key derives the cache key for a query and limit.
func Key(queryStr string, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", queryStr, limit)))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

// Get returns the cached result for key, or runs the loader and caches
// its result. Identical concurrent misses share one loader call.
func (c *QueryCache) Get(ctx context.Context, key string, load Loader) (*executor.Result, error) {
	if c.client == nil {
		return load(ctx)
	}

	if cached, err := c.client.Get(ctx, key); err == nil {
		var result executor.Result
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			c.m.CacheHitsTotal.Inc()
			return &result, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key)
		_ = c.client.Del(ctx, key)
	} else if !redis.IsNilError(err) {
		// Redis being down must not fail searches.
		c.logger.Warn("cache read failed, executing query", "error", err)
		return load(ctx)
	}
	c.m.CacheMissesTotal.Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(result); err == nil {
			if err := c.client.Set(ctx, key, encoded, c.ttl); err != nil {
				c.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*executor.Result), nil
}

// Invalidate removes all cached search results, for example after a bulk
// reindex.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	return c.client.FlushByPattern(ctx, keyPrefix+"*")
}
