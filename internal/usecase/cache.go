package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores the processing marker and serialized classification logs
// under classification:<request id>.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// NoopCache is used when Redis is not configured. Every read is a miss.
type NoopCache struct{}

// Set discards the value.
func (NoopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

// Get always reports redis.Nil.
func (NoopCache) Get(context.Context, string) (string, error) { return "", redis.Nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = NoopCache{}
)
