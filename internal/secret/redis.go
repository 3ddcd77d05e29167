// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package secret

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultKeyPrefix namespaces QRead keys in a shared Redis.
const DefaultKeyPrefix = "qread:"

// RedisCache is a Cache backed by Redis. Take uses GETDEL, which Redis
// executes atomically.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache wraps client. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Put stores value under key with a millisecond expiry.
func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errNonPositiveTTL(key, ttl)
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return oops.With("operation", "redis set").With("key", key).Wrap(err)
	}
	return nil
}

// Get returns the value under key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	return redisResult(value, err, "redis get", key)
}

// Take returns and removes the value under key.
func (c *RedisCache) Take(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.GetDel(ctx, c.key(key)).Bytes()
	return redisResult(value, err, "redis getdel", key)
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return oops.With("operation", "redis del").With("key", key).Wrap(err)
	}
	return nil
}

// Refresh overwrites key with SET XX, which leaves missing keys absent.
func (c *RedisCache) Refresh(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errNonPositiveTTL(key, ttl)
	}
	err := c.client.SetArgs(ctx, c.key(key), value, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.With("operation", "redis set xx").With("key", key).Wrap(err)
	}
	return true, nil
}

// Swap uses SET GET, which returns the replaced value atomically.
func (c *RedisCache) Swap(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	if ttl <= 0 {
		return nil, false, errNonPositiveTTL(key, ttl)
	}
	prev, err := c.client.SetArgs(ctx, c.key(key), value, redis.SetArgs{Get: true, TTL: ttl}).Result()
	return redisResult([]byte(prev), err, "redis set get", key)
}

// Incr runs INCR and PEXPIRE in one MULTI/EXEC.
func (c *RedisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errNonPositiveTTL(key, ttl)
	}
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, c.key(key))
		pipe.PExpire(ctx, c.key(key), ttl)
		return nil
	})
	if err != nil {
		return 0, oops.With("operation", "redis incr").With("key", key).Wrap(err)
	}
	return incr.Val(), nil
}

func redisResult(value []byte, err error, op, key string) ([]byte, bool, error) {
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.With("operation", op).With("key", key).Wrap(err)
	}
	return value, true, nil
}
