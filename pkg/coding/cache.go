package coding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

const cacheKeyPrefix = "nlq2sql:coding:"

// CachedClient memoizes lookups in Redis. Cache failures are logged and bypassed, never
// returned; empty results are cached too.
type CachedClient struct {
	next   Client
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient wraps next with a Redis cache. A ttl of zero keeps entries forever.
func NewCachedClient(next Client, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedClient {
	return &CachedClient{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.Named("coding-cache"),
	}
}

// CacheKey builds the Redis key for a lookup. Text is used exactly as given, so differently
// cased mentions are looked up separately.
func CacheKey(vocabulary Vocabulary, text string) string {
	return cacheKeyPrefix + string(vocabulary) + ":" + text
}

// Lookup serves from the cache when possible and fills it on a miss.
func (c *CachedClient) Lookup(ctx context.Context, vocabulary Vocabulary, text string) ([]models.Option, error) {
	key := CacheKey(vocabulary, text)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var options []models.Option
		if err := json.Unmarshal(cached, &options); err == nil {
			return options, nil
		}
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	options, err := c.next.Lookup(ctx, vocabulary, text)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, options); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return options, nil
}

func (c *CachedClient) store(ctx context.Context, key string, options []models.Option) error {
	if options == nil {
		options = []models.Option{}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}
