package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache provides caching functionality using Redis
type Cache struct {
	client *Client
	kb     *KeyBuilder
	log    *zap.Logger
}

// NewCache creates a new Cache instance
func NewCache(client *Client, namespace, context string) *Cache {
	return &Cache{
		client: client,
		kb:     NewKeyBuilder(namespace, context),
		log:    client.log.With(zap.String("module", "cache"), zap.String("namespace", namespace)),
	}
}

// Set stores a value in the cache without expiry.
func (c *Cache) Set(ctx context.Context, entity, attribute string, value interface{}) error {
	return c.SetWithTTL(ctx, entity, attribute, value, 0)
}

// SetWithTTL stores a JSON encoded value in the cache with the given TTL.
func (c *Cache) SetWithTTL(ctx context.Context, entity, attribute string, value interface{}, ttl time.Duration) error {
	key := c.kb.Build(entity, attribute)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Error("failed to set cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// Get retrieves a value from the cache. It returns ErrCacheMiss when the key is absent.
func (c *Cache) Get(ctx context.Context, entity, attribute string, value interface{}) error {
	key := c.kb.Build(entity, attribute)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		c.log.Error("failed to get cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

// Delete removes a value from the cache
func (c *Cache) Delete(ctx context.Context, entity, attribute string) error {
	key := c.kb.Build(entity, attribute)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Error("failed to delete cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete cache: %w", err)
	}

	return nil
}

// SetNX stores value only if the key does not exist yet.
func (c *Cache) SetNX(ctx context.Context, entity, attribute, value string, ttl time.Duration) (bool, error) {
	key := c.kb.Build(entity, attribute)
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx %s: %w", key, err)
	}
	return ok, nil
}

// Increment atomically increments an integer counter.
func (c *Cache) Increment(ctx context.Context, entity, attribute string) (int64, error) {
	key := c.kb.Build(entity, attribute)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// IncrementWithTTL atomically increments a counter and arms its expiry on first use.
func (c *Cache) IncrementWithTTL(ctx context.Context, entity, attribute string, ttl time.Duration) (int64, error) {
	key := c.kb.Build(entity, attribute)
	n, err := incrWithTTL.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// ExpireAt sets an absolute expiry on a key. It reports false when the key does not exist.
func (c *Cache) ExpireAt(ctx context.Context, entity, attribute string, at time.Time) (bool, error) {
	key := c.kb.Build(entity, attribute)
	ok, err := c.client.ExpireAt(ctx, key, at).Result()
	if err != nil {
		return false, fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return ok, nil
}

// CompareAndDelete deletes a key only while it still holds expected.
func (c *Cache) CompareAndDelete(ctx context.Context, entity, attribute, expected string) (bool, error) {
	key := c.kb.Build(entity, attribute)
	n, err := compareAndDelete.Run(ctx, c.client, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// SetIfNewer stores a JSON encoded value tagged with version unless the key
// already holds the same or a newer version. It reports whether the value was
// written.
func (c *Cache) SetIfNewer(ctx context.Context, entity, attribute string, version int64, value interface{}, ttl time.Duration) (bool, error) {
	key := c.kb.Build(entity, attribute)
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	n, err := setIfNewer.Run(ctx, c.client, []string{key}, version, data, ttl.Milliseconds()).Int64()
	if err != nil {
		c.log.Error("failed to set versioned cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return n == 1, nil
}

// GetVersioned reads a value written by SetIfNewer and returns its version.
// It returns ErrCacheMiss when the key is absent.
func (c *Cache) GetVersioned(ctx context.Context, entity, attribute string, value interface{}) (int64, error) {
	key := c.kb.Build(entity, attribute)
	vals, err := c.client.HMGet(ctx, key, versionField, dataField).Result()
	if err != nil {
		c.log.Error("failed to get versioned cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	rawVersion, _ := vals[0].(string)
	data, ok := vals[1].(string)
	if !ok {
		return 0, ErrCacheMiss
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad version in %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), value); err != nil {
		return 0, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return version, nil
}
