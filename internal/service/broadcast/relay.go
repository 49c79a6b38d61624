package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/nmxmxh/ovasabi-live/pkg/ws"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay publishes through Redis Pub/Sub so that every instance delivers the
// event to its own sockets. Run must be active on each instance.
type Relay struct {
	client *redis.Client
	rooms  *ws.Manager
	now    func() time.Time
	log    *zap.Logger
}

// NewRelay creates a cross-process publisher.
func NewRelay(client *redis.Client, rooms *ws.Manager, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{client: client, rooms: rooms, now: time.Now, log: log.With(zap.String("module", "broadcast_relay"))}
}

// Channel returns the Pub/Sub channel of roomID.
func Channel(roomID string) string {
	return redis.ChannelRoomPrefix + roomID
}

// Publish implements Publisher.
func (r *Relay) Publish(ctx context.Context, roomID, event string, payload interface{}) error {
	env, err := events.NewEnvelope(roomID, event, payload, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish %s to room %s: %w", event, roomID, err)
	}
	return nil
}

// Run subscribes to every room channel and hands incoming events to the local
// registry until ctx is cancelled. The initial subscription is retried with
// backoff; go-redis reconnects an established subscription on its own.
func (r *Relay) Run(ctx context.Context) error {
	pattern := redis.ChannelRoomPrefix + "*"

	pubsub := r.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	err := backoff.RetryNotify(func() error {
		_, err := pubsub.Receive(ctx)
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), func(err error, next time.Duration) {
		r.log.Warn("Room relay subscription failed, retrying", zap.Error(err), zap.Duration("retry_in", next))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	r.log.Info("Room relay subscribed", zap.String("pattern", pattern))

	return utils.StreamItems(ctx, pubsub.Channel(), func(msg *goredis.Message) error {
		r.deliver(msg.Channel, msg.Payload)
		return nil
	})
}

func (r *Relay) deliver(channel, payload string) {
	env := &events.EventEnvelope{}
	if err := json.Unmarshal([]byte(payload), env); err != nil {
		r.log.Warn("Dropping malformed room event", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.RoomID == "" {
		env.RoomID = strings.TrimPrefix(channel, redis.ChannelRoomPrefix)
	}
	r.rooms.Publish(env.RoomID, env)
}
