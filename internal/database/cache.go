package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefixes
	CacheKeySettings = "clipdigest:settings:"
	CacheKeyPlan     = "clipdigest:plan:"

	// Cache TTLs
	CacheTTLSettings = 5 * time.Minute
	CacheTTLPlan     = 5 * time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into
// dest. Without Redis every read is a cache miss.
func CacheGet(key string, dest interface{}) error {
	if Redis == nil {
		return redis.Nil
	}
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	if Redis == nil {
		return nil
	}
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes keys from Redis cache
func CacheDelete(keys ...string) error {
	if Redis == nil || len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}
