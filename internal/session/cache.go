package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/metrics"
)

// ResearchCache stores prior specialist answers keyed by source and
// normalized query, so repeat questions skip a full task dispatch.
type ResearchCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResearchCache wraps a Redis client as the research cache.
func NewResearchCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResearchCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &ResearchCache{client: client, ttl: ttl, logger: logger}
}

// NormalizeQuery lower-cases and trims a query for cache keying.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// CacheKey builds the "source:normalizedQuery" key.
func CacheKey(source, query string) string {
	return source + ":" + NormalizeQuery(query)
}

func (c *ResearchCache) redisKey(source, query string) string {
	return fmt.Sprintf("research:cache:%s", CacheKey(source, query))
}

// Get returns the cached result for (source, query), or nil on a miss.
func (c *ResearchCache) Get(ctx context.Context, source, query string) (*CachedResult, error) {
	data, err := c.client.Get(ctx, c.redisKey(source, query)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(source).Inc()
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("research cache get: %w", err)
	}

	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is a miss, not an error; it will be overwritten.
		c.logger.Warn("Dropping corrupt research cache entry",
			zap.String("source", source), zap.Error(err))
		metrics.CacheMisses.WithLabelValues(source).Inc()
		return nil, nil
	}

	metrics.CacheHits.WithLabelValues(source).Inc()
	return &result, nil
}

// Put stores a specialist answer for (source, query).
func (c *ResearchCache) Put(ctx context.Context, source, query string, result CachedResult) error {
	result.Source = source
	result.Query = NormalizeQuery(query)
	if result.StoredAt.IsZero() {
		result.StoredAt = time.Now()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("research cache marshal: %w", err)
	}
	return c.client.Set(ctx, c.redisKey(source, query), data, c.ttl).Err()
}

// Clear removes every cached research entry.
func (c *ResearchCache) Clear(ctx context.Context) (int, error) {
	keys, err := c.client.Keys(ctx, "research:cache:*").Result()
	if err != nil {
		return 0, fmt.Errorf("research cache clear: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}
