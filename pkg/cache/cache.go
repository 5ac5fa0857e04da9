// Package cache provides a Redis-based caching layer with JSON serialization.
// It is used for the metrics snapshot, the read-through session cache in
// front of non-Redis backends, and the cleanup lock.
//
// Features:
//   - Automatic JSON serialization/deserialization
//   - TTL-based expiration
//   - GetOrSet for the cache-aside pattern
//   - SetNX for distributed locks
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache wraps a Redis client with JSON encoding of values.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance wrapping a Redis client.
//
// Example:
//
//	c := cache.NewCache(redisDB.Client())
func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Get retrieves a value from cache and unmarshals it into the target.
// Returns ErrCacheMiss if the key doesn't exist.
//
// Example:
//
//	var snapshot models.MetricsSnapshot
//	err := c.Get(ctx, cache.MetricsSnapshotKey(), &snapshot)
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to get from cache")
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached data")
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

// Set stores a value in cache with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to marshal data for cache")
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to set cache")
		return fmt.Errorf("cache set error: %w", err)
	}

	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached data")
	return nil
}

// Delete removes one or more keys from cache.
//
// Example:
//
//	c.Delete(ctx, cache.CachedSessionKey(id), cache.MetricsSnapshotKey())
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("Failed to delete from cache")
		return fmt.Errorf("cache delete error: %w", err)
	}

	log.Debug().Strs("keys", keys).Msg("Deleted from cache")
	return nil
}

// GetOrSet implements the cache-aside pattern.
// It attempts to get from cache, and on miss, executes the loader function
// and caches the result. If the loader returns an error nothing is cached
// and the error is returned wrapped, so errors.Is still matches it.
//
// Example:
//
//	var snapshot models.MetricsSnapshot
//	err := c.GetOrSet(ctx, cache.MetricsSnapshotKey(), 30*time.Second, &snapshot, func() (interface{}, error) {
//	    return reporter.compute(ctx)
//	})
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, target interface{}, loader func() (interface{}, error)) error {
	err := c.Get(ctx, key, target)
	if err == nil {
		log.Debug().Str("key", key).Msg("Cache hit")
		return nil
	}

	if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	log.Debug().Str("key", key).Msg("Cache miss, loading data")

	data, err := loader()
	if err != nil {
		return fmt.Errorf("loader error: %w", err)
	}

	if err := c.Set(ctx, key, data, ttl); err != nil {
		// Log but don't fail - we have the data
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache loaded data")
	}

	// Round-trip through JSON so target has the same shape a hit would produce
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := json.Unmarshal(bytes, target); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

// SetNX sets a key only if it doesn't exist.
// Returns true if the key was set, false if it already existed.
//
// Example:
//
//	acquired, err := c.SetNX(ctx, cache.CleanupLockKey(), hostname, 10*time.Minute)
//	if !acquired {
//	    return nil // another replica is cleaning up
//	}
//	defer c.Delete(ctx, cache.CleanupLockKey())
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal error: %w", err)
	}

	ok, err := c.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to set if not exists")
		return false, fmt.Errorf("cache setnx error: %w", err)
	}

	return ok, nil
}
