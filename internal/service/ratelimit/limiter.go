// Package ratelimit admits or rejects interactions with fixed-window counters
// shared through Redis.
//
// The window is fixed, not sliding: a sender can land up to twice the ceiling
// across a window boundary. That burst is accepted.
package ratelimit

import (
	"context"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"go.uber.org/zap"
)

// Interaction types with a ceiling.
const (
	TypeGift     = "gift"
	TypeEmoji    = "emoji"
	TypeQAVote   = "qa-vote"
	TypePollVote = "poll-vote"
	TypeQuestion = "question"
)

// DefaultWindow is the length of one counting window.
const DefaultWindow = redis.TTLRateLimit

// DefaultLimits are the per-window ceilings.
var DefaultLimits = map[string]int64{
	TypeGift:     5,
	TypeEmoji:    20,
	TypeQAVote:   10,
	TypePollVote: 10,
	TypeQuestion: 5,
}

// Counter is the atomic increment-with-expiry primitive the limiter needs.
type Counter interface {
	IncrementWithTTL(ctx context.Context, entity, attribute string, ttl time.Duration) (int64, error)
}

// Limiter enforces per (sender, room, type) ceilings.
type Limiter struct {
	counter Counter
	limits  map[string]int64
	window  time.Duration
	log     *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits replaces the ceilings.
func WithLimits(limits map[string]int64) Option {
	return func(l *Limiter) { l.limits = limits }
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// New creates a Limiter over counter.
func New(counter Counter, log *zap.Logger, opts ...Option) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Limiter{
		counter: counter,
		limits:  DefaultLimits,
		window:  DefaultWindow,
		log:     log.With(zap.String("module", "ratelimit")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewRedis creates a Limiter backed by the rate:interaction:* keyspace.
func NewRedis(client *redis.Client, log *zap.Logger, opts ...Option) *Limiter {
	return New(redis.NewCache(client, redis.NamespaceRate, redis.ContextInteraction), log, opts...)
}

// Limit returns the ceiling for interactionType; ok is false when the type is unlimited.
func (l *Limiter) Limit(interactionType string) (int64, bool) {
	n, ok := l.limits[interactionType]
	return n, ok
}

// Admit counts one interaction and reports whether it is within the ceiling.
// A cache failure admits the interaction.
func (l *Limiter) Admit(ctx context.Context, senderID, roomID, interactionType string) (bool, error) {
	limit, ok := l.limits[interactionType]
	if !ok {
		return true, nil
	}

	n, err := l.counter.IncrementWithTTL(ctx, interactionType, roomID+":"+senderID, l.window)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(interactionType, "fail_open").Inc()
		l.log.Warn("Rate limit counter unavailable, admitting",
			zap.String("type", interactionType),
			zap.String("room_id", roomID),
			zap.String("sender_id", senderID),
			zap.Error(err),
		)
		return true, err
	}

	if n > limit {
		metrics.RateLimitDecisions.WithLabelValues(interactionType, "rejected").Inc()
		l.log.Debug("Rate limited",
			zap.String("type", interactionType),
			zap.String("room_id", roomID),
			zap.String("sender_id", senderID),
			zap.Int64("count", n),
			zap.Int64("limit", limit),
		)
		return false, nil
	}
	metrics.RateLimitDecisions.WithLabelValues(interactionType, "admitted").Inc()
	return true, nil
}
