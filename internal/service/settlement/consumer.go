package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nmxmxh/ovasabi-live/internal/repository/engagement"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Settled is the acknowledgement the settlement process publishes once a gift
// has been paid out.
type Settled struct {
	GiftID    string    `json:"giftId"`
	SettledAt time.Time `json:"settledAt"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer marks gifts processed as acknowledgements arrive.
type Consumer struct {
	reader  messageReader
	repo    engagement.Repository
	retries uint64
	policy  func() backoff.BackOff
	log     *zap.Logger
}

// NewConsumer creates a consumer group reader on topic.
func NewConsumer(brokers []string, topic, groupID string, repo engagement.Repository, log *zap.Logger) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}), repo, log)
}

func newConsumer(r messageReader, repo engagement.Repository, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		reader:  r,
		repo:    repo,
		retries: 3,
		policy:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:     log.With(zap.String("module", "settlement_consumer")),
	}
}

// Run consumes until ctx is cancelled. Each message is committed after it has
// been applied, or after it was found to be unusable.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("Failed to commit settlement offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var ack Settled
	if err := json.Unmarshal(msg.Value, &ack); err != nil || ack.GiftID == "" {
		c.log.Warn("Dropping malformed settlement message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	if ack.SettledAt.IsZero() {
		ack.SettledAt = msg.Time
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.policy(), c.retries), ctx)
	err := backoff.Retry(func() error {
		_, err := c.repo.MarkGiftProcessed(ctx, ack.GiftID, ack.SettledAt)
		if err != nil && !errors.Is(err, apperrors.ErrStorageUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	switch {
	case err == nil:
		metrics.SettlementPublishes.WithLabelValues("settled").Inc()
	case errors.Is(err, apperrors.ErrGiftAlreadyProcessed):
		c.log.Debug("Gift already settled", zap.String("gift_id", ack.GiftID))
	default:
		_ = apperrors.LogWithError(ctx, c.log, "Failed to mark gift processed", err, zap.String("gift_id", ack.GiftID))
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
