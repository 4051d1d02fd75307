package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/logging"
	"github.com/driveline/market-research-go/internal/models"
)

// ValuationCacheEntry wraps a cached valuation with its write time.
type ValuationCacheEntry struct {
	Valuation models.AggregatedValuation `json:"valuation"`
	CachedAt  time.Time                  `json:"cached_at"`
}

// ValuationCacheStats tracks cache performance counters.
type ValuationCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// RedisValuationCache keeps the latest aggregated valuation per subject in
// Redis so read endpoints skip the database for recently researched vehicles.
type RedisValuationCache struct {
	redis  *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
	stats  ValuationCacheStats
	prefix string
	log    *logrus.Entry
}

// NewRedisValuationCache creates a Redis-backed valuation cache.
func NewRedisValuationCache(redisClient *redis.Client, ttl time.Duration) *RedisValuationCache {
	return &RedisValuationCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "valuation_cache:",
		log:    logging.ForComponent("valuation_cache"),
	}
}

// Get retrieves the cached valuation for a subject. The second return value
// reports whether the cache held a usable entry.
func (c *RedisValuationCache) Get(ctx context.Context, subjectID string) (*models.AggregatedValuation, bool) {
	data, err := c.redis.Get(ctx, c.prefix+subjectID).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).Warn("Redis error reading valuation cache")
		c.miss()
		return nil, false
	}

	var entry ValuationCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.log.WithError(err).Warn("Error deserializing cached valuation")
		c.miss()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return &entry.Valuation, true
}

// Set stores the latest valuation for a subject. Failures are logged and
// swallowed: the cache is an optimization, never a source of truth.
func (c *RedisValuationCache) Set(ctx context.Context, subjectID string, valuation models.AggregatedValuation) {
	entry := ValuationCacheEntry{Valuation: valuation, CachedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.WithError(err).Warn("Error serializing valuation for cache")
		return
	}

	if err := c.redis.Set(ctx, c.prefix+subjectID, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("Redis error writing valuation cache")
		return
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
}

// Invalidate drops the cached valuation for a subject.
func (c *RedisValuationCache) Invalidate(ctx context.Context, subjectID string) {
	if err := c.redis.Del(ctx, c.prefix+subjectID).Err(); err != nil {
		c.log.WithError(err).Warn("Redis error invalidating valuation cache")
	}
}

// Stats returns a copy of the cache counters.
func (c *RedisValuationCache) Stats() ValuationCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisValuationCache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
