// Package scheduler runs the periodic background jobs of the engagement layer
// on a robfig/cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron instance. Overlapping runs of one job are skipped and
// panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     *zap.Logger
}

// New creates a stopped Scheduler. Each run gets a context bounded by timeout.
func New(log *zap.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("module", "scheduler"))
	cl := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		log:     log,
	}
}

// Every registers job to run at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.wrap(name, job))
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.log.Info("Scheduled job", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Warn("Job failed", zap.String("job", name), zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		s.log.Debug("Job completed", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, cancels running jobs and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Locked makes job run on at most one process at a time by holding the named
// lease for the duration of the run. When another process holds it the run is
// skipped. A job error is returned as is and does not count as a failed
// acquisition.
func Locked(locker *redis.Locker, name string, ttl time.Duration, job Job) Job {
	return func(ctx context.Context) error {
		var acquired bool
		err := locker.WithLock(ctx, name, ttl, func(ctx context.Context) error {
			acquired = true
			metrics.LockAcquisitions.WithLabelValues(name, "acquired").Inc()
			return job(ctx)
		})
		switch {
		case acquired:
			return err
		case errors.Is(err, redis.ErrLockHeld):
			metrics.LockAcquisitions.WithLabelValues(name, "held").Inc()
			return nil
		case err != nil:
			metrics.LockAcquisitions.WithLabelValues(name, "error").Inc()
			return err
		}
		return nil
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
