package redis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var fetchGroup singleflight.Group

// GetOrSetWithProtection reads a versioned entry of entity, falling back to
// fetchFunc on a miss. Concurrent misses for the same key share a single
// fetch, and the fetched value is cached only if no newer version landed in
// the meantime. Cache failures are logged and never fail the read.
func GetOrSetWithProtection[T any](
	ctx context.Context,
	cache *Cache,
	entity string,
	fetchFunc func(context.Context) (T, int64, error),
	ttl time.Duration,
) (T, error) {
	var cached T
	_, err := cache.GetVersioned(ctx, entity, "", &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		cache.log.Warn("cache read failed, falling back to source", zap.String("entity", entity), zap.Error(err))
	}

	key := cache.kb.Build(entity, "")
	v, err, shared := fetchGroup.Do(key, func() (interface{}, error) {
		val, version, err := fetchFunc(ctx)
		if err != nil {
			return nil, err
		}
		if _, setErr := cache.SetIfNewer(ctx, entity, "", version, val, ttl); setErr != nil {
			cache.log.Warn("cache fill failed", zap.String("entity", entity), zap.Error(setErr))
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		cache.log.Debug("shared in-flight fetch", zap.String("key", key))
	}
	val, _ := v.(T)
	return val, nil
}
