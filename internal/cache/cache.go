// Package cache provides a read-through cache for question pools and
// due-review lists in front of the repository layer: a distributed
// cache backed by go-redis/v9, with an in-memory TTL map retained as
// the fallback store used when no Redis client is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a generic JSON-serializing get/set cache with TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// RedisCache implements Cache against a shared Redis instance with
// explicit per-call TTLs rather than fixed tiers, since selector
// pools and due-review lists churn at different rates.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// MemoryCache is the in-process fallback: a mutex-guarded map of
// entries with lazy expiration checked on Get rather than a
// background sweep (no cleanup goroutine; pool sizes are small and
// short-lived).
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value %s: %w", key, err)
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{raw: raw, expires: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// FallbackCache tries primary first and falls back to secondary on any
// error, so a Redis outage degrades to in-memory caching rather than
// bypassing the cache entirely.
type FallbackCache struct {
	primary   Cache
	secondary Cache
}

// NewFallbackCache wraps primary with secondary as its failure fallback.
func NewFallbackCache(primary, secondary Cache) *FallbackCache {
	return &FallbackCache{primary: primary, secondary: secondary}
}

func (c *FallbackCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	hit, err := c.primary.Get(ctx, key, dest)
	if err == nil {
		return hit, nil
	}
	return c.secondary.Get(ctx, key, dest)
}

func (c *FallbackCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.primary.Set(ctx, key, value, ttl); err != nil {
		return c.secondary.Set(ctx, key, value, ttl)
	}
	return nil
}

func (c *FallbackCache) Invalidate(ctx context.Context, key string) error {
	err1 := c.primary.Invalidate(ctx, key)
	err2 := c.secondary.Invalidate(ctx, key)
	if err1 != nil {
		return err1
	}
	return err2
}

// SelectorPoolKey builds the cache key for a (userID, mode, section)
// candidate pool.
func SelectorPoolKey(userID, mode, sectionCode string) string {
	return fmt.Sprintf("selector:pool:%s:%s:%s", userID, mode, sectionCode)
}

// DueReviewsKey builds the cache key for a user's due-review list.
func DueReviewsKey(userID, itemType string) string {
	return fmt.Sprintf("review:due:%s:%s", userID, itemType)
}
