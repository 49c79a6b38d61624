// Package expiry ends polls whose duration has elapsed.
//
// Timed polls are scheduled on a Redis priority queue scored by their expiry in
// unix milliseconds. A periodic sweep, guarded by a distributed lock so that
// one process runs it at a time, drains the due entries and also scans the
// store for active polls past their expiry, which covers entries that were
// never queued or were lost. Finalizing is idempotent: only the update that
// flips a poll inactive broadcasts poll-ended.
package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/nmxmxh/ovasabi-live/internal/repository/engagement"
	"github.com/nmxmxh/ovasabi-live/internal/service/broadcast"
	"github.com/nmxmxh/ovasabi-live/internal/service/vote"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// QueueName is the priority queue timed polls are scheduled on.
	QueueName = "poll-expiry"
	// LockName guards the sweep across processes.
	LockName = "poll-expiry-sweep"

	// ReasonExpired finalizes only polls whose expiry has passed.
	ReasonExpired = "expired"
	// ReasonEnded finalizes unconditionally, for an explicit end-poll.
	ReasonEnded = "ended"

	defaultSweepLimit = 500
	finalizeParallel  = 8
)

// Hook observes a finalized poll, after it is persisted and before poll-ended
// is published.
type Hook func(ctx context.Context, p *models.Poll, res models.PollResults)

// Finalizer ends polls and announces the final results.
type Finalizer struct {
	repo      engagement.Repository
	publisher broadcast.Publisher
	queue     *redis.PriorityQueue
	hooks     []Hook
	limit     int
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithHook registers h to run for every finalized poll.
func WithHook(h Hook) Option {
	return func(f *Finalizer) { f.hooks = append(f.hooks, h) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Finalizer) { f.now = now }
}

// WithSweepLimit bounds how many polls one sweep finalizes from each source.
func WithSweepLimit(n int) Option {
	return func(f *Finalizer) {
		if n > 0 {
			f.limit = n
		}
	}
}

// New creates a Finalizer. queue may be nil, in which case only the store scan
// finds expired polls.
func New(repo engagement.Repository, publisher broadcast.Publisher, queue *redis.PriorityQueue, log *zap.Logger, opts ...Option) *Finalizer {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Finalizer{
		repo:      repo,
		publisher: publisher,
		queue:     queue,
		limit:     defaultSweepLimit,
		now:       time.Now,
		log:       log.With(zap.String("module", "poll_expiry")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Schedule queues p for finalization at its expiry. Polls without an expiry
// are ignored.
func (f *Finalizer) Schedule(ctx context.Context, p *models.Poll) error {
	if f.queue == nil || p.ExpiresAt == nil {
		return nil
	}
	return f.queue.Enqueue(ctx, QueueName, p.ID, float64(p.ExpiresAt.UnixMilli()))
}

// Finalize ends pollID. With ReasonExpired the poll is only ended once its
// expiry has passed. It reports whether this call performed the transition.
func (f *Finalizer) Finalize(ctx context.Context, pollID, reason string) (*models.Poll, bool, error) {
	now := f.now()
	var ended bool
	p, err := f.repo.UpdatePoll(ctx, pollID, func(p *models.Poll) error {
		if reason == ReasonExpired && !vote.Expired(p, now) {
			return nil
		}
		ended = vote.End(p, now)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !ended {
		return p, false, nil
	}

	metrics.PollsFinalized.WithLabelValues(reason).Inc()
	res := vote.Results(p, now)
	for _, h := range f.hooks {
		h(ctx, p, res)
	}
	if err := f.publisher.Publish(ctx, p.RoomID, events.PollEnded, events.PollResultsPayload{PollID: p.ID, Results: res}); err != nil {
		f.log.Warn("Failed to broadcast poll end", zap.String("poll_id", p.ID), zap.String("room_id", p.RoomID), zap.Error(err))
	}
	f.log.Info("Poll finalized",
		zap.String("poll_id", p.ID),
		zap.String("room_id", p.RoomID),
		zap.String("reason", reason),
		zap.Int("total_votes", p.TotalVotes))
	return p, true, nil
}

// Sweep finalizes every poll that is due. It is meant to run under
// scheduler.Locked.
func (f *Finalizer) Sweep(ctx context.Context) error {
	now := f.now()
	ids := f.drainQueue(ctx, now)

	scanned, err := f.repo.ListExpiredPolls(ctx, now, f.limit)
	if err != nil {
		f.log.Warn("Expired poll scan failed", zap.Error(err))
	}
	ids = lo.Uniq(append(ids, scanned...))
	if len(ids) == 0 {
		return err
	}

	finalizeErr := utils.BatchProcess(ctx, ids, finalizeParallel, func(ctx context.Context, id string) error {
		_, _, err := f.Finalize(ctx, id, ReasonExpired)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	})
	f.log.Debug("Expiry sweep finished", zap.Int("candidates", len(ids)))
	return errors.Join(err, finalizeErr)
}

// drainQueue pops every queued poll id due at now.
func (f *Finalizer) drainQueue(ctx context.Context, now time.Time) []string {
	if f.queue == nil {
		return nil
	}
	var ids []string
	for len(ids) < f.limit {
		item, ok, err := f.queue.DequeueDue(ctx, QueueName, float64(now.UnixMilli()))
		if err != nil {
			f.log.Warn("Failed to drain poll expiry queue", zap.Error(err))
			break
		}
		if !ok {
			break
		}
		ids = append(ids, item.Payload)
	}
	return ids
}
