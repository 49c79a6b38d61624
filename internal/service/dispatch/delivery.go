package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nmxmxh/ovasabi-live/internal/service/broadcast"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// batchEntity is the cache entity the last flushed batch of a key is kept under.
const batchEntity = "batch"

// Delivery turns flushed batches into <event>-batch broadcasts. The batch is
// first written to the cache behind a circuit breaker; a cache failure is
// logged and the broadcast still happens. A failed broadcast is recorded on
// the dead-letter stream.
type Delivery struct {
	publisher broadcast.Publisher
	client    *redis.Client
	cache     *redis.Cache
	breaker   *cb.CircuitBreaker
	log       *zap.Logger
}

// NewDelivery creates the delivery pipeline. client may be nil, in which case
// batches are neither cached nor dead-lettered.
func NewDelivery(publisher broadcast.Publisher, client *redis.Client, log *zap.Logger) *Delivery {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("module", "batch_delivery"))
	d := &Delivery{publisher: publisher, client: client, log: log}
	if client != nil {
		d.cache = redis.NewCache(client, redis.NamespaceCache, redis.ContextEngage)
	}
	d.breaker = cb.NewCircuitBreaker(cb.Settings{
		Name:        "BatchCacheCB",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to cb.State) {
			log.Warn("Circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return d
}

// Deliver implements DeliverFunc.
func (d *Delivery) Deliver(ctx context.Context, b Batch) error {
	payload := events.BatchPayload{
		RoomID: b.RoomID,
		Type:   b.Type,
		Count:  len(b.Items),
		Events: b.Payloads(),
	}

	if d.cache != nil {
		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.cache.SetWithTTL(ctx, batchEntity, b.RoomID+":"+b.Type, payload, redis.TTLBatch)
		})
		if err != nil {
			d.log.Warn("Batch cache write skipped, broadcasting directly",
				zap.String("room_id", b.RoomID),
				zap.String("type", b.Type),
				zap.Error(err))
		}
	}

	name := events.BatchName(b.Type)
	if err := d.publisher.Publish(ctx, b.RoomID, name, payload); err != nil {
		d.deadLetter(ctx, name, payload, err)
		return fmt.Errorf("broadcast %s: %w", name, err)
	}
	return nil
}

func (d *Delivery) deadLetter(ctx context.Context, name string, payload events.BatchPayload, cause error) {
	d.log.Error("Batch broadcast failed",
		zap.String("room_id", payload.RoomID),
		zap.String("event", name),
		zap.Int("count", payload.Count),
		zap.Error(cause))
	if d.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		d.log.Error("Failed to encode batch for DLQ", zap.Error(err))
		return
	}
	if err := redis.EmitToDLQ(context.WithoutCancel(ctx), d.client, name, payload.RoomID, data, cause); err == nil {
		metrics.DLQWrites.Inc()
	}
}
