package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheKeyPrefix is the Redis key prefix for cached data
	CacheKeyPrefix  = "cache:"
	DefaultCacheTTL = 5 * time.Minute
)

// CacheService stores JSON snapshots of read-mostly query results.
type CacheService struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCacheService(client redis.Cmdable, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheService{client: client, ttl: ttl}
}

// Get decodes the cached value into dest. A miss is (false, nil).
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, CacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, CacheKeyPrefix+key, data, c.ttl).Err()
}

// DeletePrefix removes every cached key that starts with prefix.
func (c *CacheService) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, CacheKeyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CacheKey generates a cache key for a specific resource
func CacheKey(resource string, identifier string) string {
	return fmt.Sprintf("%s:%s", resource, identifier)
}
