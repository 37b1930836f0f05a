package phi

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// cacheKey uniquely identifies a (original_id, source_file) pair within a
// single sample-mapping cache.
type cacheKey struct {
	originalID string
	sourceFile string
}

func (k cacheKey) redisKey() string {
	return fmt.Sprintf("phi:sample-mapping:%s:%s", k.sourceFile, k.originalID)
}

// localCache is the per-loader bounded in-memory layer, grounded on the
// teacher's go.mod v2 LRU dependency. It dedupes repeated lookups within
// one bulk-anonymize call before they reach Redis or Postgres.
type localCache struct {
	lru *lru.Cache[cacheKey, string]
}

func newLocalCache(size int) (*localCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("phi: creating local cache: %w", err)
	}
	return &localCache{lru: c}, nil
}

func (c *localCache) get(k cacheKey) (string, bool) {
	return c.lru.Get(k)
}

func (c *localCache) put(k cacheKey, uuid string) {
	c.lru.Add(k, uuid)
}

// crossLoadCache is the optional process-wide Redis layer sitting between
// the per-loader LRU and the persistent mapping table, modeled on the
// teacher's CacheClient check-cache/fall-through/write-through shape.
type crossLoadCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCrossLoadCache connects to Redis for cross-load sample-mapping
// caching. A nil *crossLoadCache (constructed elsewhere) disables this
// layer entirely when Redis is not configured.
func NewCrossLoadCache(redisURL string, ttl time.Duration) (*crossLoadCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("phi: parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("phi: connecting to redis: %w", err)
	}

	return &crossLoadCache{redis: client, ttl: ttl}, nil
}

func (c *crossLoadCache) get(ctx context.Context, k cacheKey) (string, bool, error) {
	val, err := c.redis.Get(ctx, k.redisKey()).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("phi: redis get: %w", err)
	}
	return val, true, nil
}

func (c *crossLoadCache) set(ctx context.Context, k cacheKey, uuid string) error {
	return c.redis.Set(ctx, k.redisKey(), uuid, c.ttl).Err()
}

// Close releases the Redis connection.
func (c *crossLoadCache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}
