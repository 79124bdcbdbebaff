// Package cache holds the Redis read-through cache for single listings and
// the invalidation signal that keeps it, and other replicas, fresh.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/adoptly/apiserver/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// evicted marks a key that was invalidated recently. While it is present
// Fill cannot store a value read before the invalidation.
var evicted = []byte("\x00evicted")

// Cache stores JSON values in Redis. A nil *Cache, or one built without an
// address, always misses.
type Cache struct {
	rdb   *redis.Client
	ttl   time.Duration
	guard time.Duration
}

// New connects to Redis. It returns a disabled cache when no address is
// configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if cfg.Addr == "" {
		return &Cache{}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Cache{rdb: rdb, ttl: cfg.TTL, guard: cfg.InvalidationGuard}, nil
}

// Enabled reports whether values are actually stored.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Get unmarshals the value at key into dest and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decode(val, dest)
}

func decode(val []byte, dest any) (bool, error) {
	if bytes.Equal(val, evicted) {
		return false, nil
	}
	return true, json.Unmarshal(val, dest)
}

// Fill stores value at key with the configured TTL unless the key already
// holds a value or was evicted within the guard window.
func (c *Cache) Fill(ctx context.Context, key string, value any) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, key, b, c.ttl).Err()
}

// Evict drops the values at keys. With a guard window the keys are left
// marked as evicted for that long so that slower readers holding an older
// copy cannot put it back.
func (c *Cache) Evict(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	if c.guard <= 0 {
		return c.rdb.Del(ctx, keys...).Err()
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Set(ctx, key, evicted, c.guard)
		}
		return nil
	})
	return err
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// ListingKey is the cache key of a single listing.
func ListingKey(id uuid.UUID) string {
	return "animal:" + id.String()
}
