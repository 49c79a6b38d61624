package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockHeld is returned by WithLock when another holder owns the lease.
var ErrLockHeld = errors.New("lock already held")

// Locker hands out short-lived, token-fenced leases on named resources.
type Locker struct {
	cache *Cache
	log   *zap.Logger
}

// NewLocker creates a Locker storing leases under lock:engage:*.
func NewLocker(client *Client) *Locker {
	return &Locker{
		cache: NewCache(client, NamespaceLock, ContextEngage),
		log:   client.log.With(zap.String("module", "locker")),
	}
}

// Acquire claims name for ttl. It returns the lease token, or ok=false when the
// lock is currently held by someone else.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.cache.SetNX(ctx, name, "", token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees name if token still owns it. A stale or foreign token never
// deletes a lease acquired by a different holder.
func (l *Locker) Release(ctx context.Context, name, token string) (bool, error) {
	released, err := l.cache.CompareAndDelete(ctx, name, "", token)
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", name, err)
	}
	return released, nil
}

// WithLock executes fn while holding name. It returns ErrLockHeld without
// running fn when the lease is taken.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, ok, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}

	defer func() {
		// release on a fresh context so a cancelled caller still frees the lease
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		released, err := l.Release(releaseCtx, name, token)
		if err != nil {
			l.log.Error("Failed to release lock", zap.String("lock", name), zap.Error(err))
		} else if !released {
			l.log.Warn("Lock expired before release", zap.String("lock", name), zap.Duration("ttl", ttl))
		}
	}()

	return fn(ctx)
}
