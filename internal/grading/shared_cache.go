package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is a second cache tier shared between API replicas.
type SharedCache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Put(ctx context.Context, key string, result Result) error
}

// RedisCache stores results as JSON strings under a common key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a shared cache tier on top of an existing Redis client.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "grading:result"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(fingerprint string) string {
	return fmt.Sprintf("%s:%s", c.prefix, fingerprint)
}

// Get returns the cached result; a missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool, error) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("read shared grading cache: %w", err)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, false, fmt.Errorf("decode shared grading cache: %w", err)
	}
	return result, true, nil
}

// Put writes the result with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, key string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode shared grading cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write shared grading cache: %w", err)
	}
	return nil
}
