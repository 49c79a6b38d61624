package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	room    string
	event   string
	payload interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, roomID, event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{room: roomID, event: event, payload: payload})
	return f.err
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.Wrap(rdb, zap.NewNop()), mr
}

func giftBatch() Batch {
	now := time.Now()
	return Batch{
		RoomID: "room_1",
		Type:   events.GiftSent,
		Items: []Item{
			{Payload: events.GiftSentPayload{GiftID: "g1", GiftValue: 10}, EnqueuedAt: now},
			{Payload: events.GiftSentPayload{GiftID: "g2", GiftValue: 20}, EnqueuedAt: now},
		},
		Trigger: "size",
	}
}

func TestDelivery_PublishesAndCachesBatch(t *testing.T) {
	client, mr := newRedis(t)
	pub := &fakePublisher{}
	d := NewDelivery(pub, client, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, d.Deliver(ctx, giftBatch()))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "room_1", pub.sent[0].room)
	assert.Equal(t, "gift-sent-batch", pub.sent[0].event)
	payload, ok := pub.sent[0].payload.(events.BatchPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, events.GiftSent, payload.Type)
	assert.Len(t, payload.Events, 2)

	assert.True(t, mr.Exists("cache:engage:batch:room_1:gift-sent"))
	assert.Equal(t, redis.TTLBatch, mr.TTL("cache:engage:batch:room_1:gift-sent"))

	cache := redis.NewCache(client, redis.NamespaceCache, redis.ContextEngage)
	var last events.BatchPayload
	require.NoError(t, cache.Get(ctx, batchEntity, "room_1:"+events.GiftSent, &last))
	assert.Equal(t, 2, last.Count)
	assert.ErrorIs(t, cache.Get(ctx, batchEntity, "room_2:"+events.GiftSent, &last), redis.ErrCacheMiss)
}

func TestDelivery_CacheFailureStillBroadcasts(t *testing.T) {
	client, mr := newRedis(t)
	mr.SetError("LOADING dataset in memory")
	pub := &fakePublisher{}
	d := NewDelivery(pub, client, zap.NewNop())

	require.NoError(t, d.Deliver(context.Background(), giftBatch()))
	assert.Len(t, pub.sent, 1)
}

func TestDelivery_BroadcastFailureGoesToDLQ(t *testing.T) {
	client, _ := newRedis(t)
	boom := errors.New("relay down")
	pub := &fakePublisher{err: boom}
	d := NewDelivery(pub, client, zap.NewNop())
	ctx := context.Background()

	err := d.Deliver(ctx, giftBatch())
	assert.ErrorIs(t, err, boom)

	entries, err := client.XRange(ctx, redis.DLQStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gift-sent-batch", entries[0].Values["event_type"])
	assert.Equal(t, "room_1", entries[0].Values["room_id"])
	assert.Contains(t, entries[0].Values["error"], "relay down")
	assert.Contains(t, entries[0].Values["event"], `"count":2`)
}

func TestDelivery_WithoutRedis(t *testing.T) {
	pub := &fakePublisher{err: errors.New("down")}
	d := NewDelivery(pub, nil, zap.NewNop())

	assert.Error(t, d.Deliver(context.Background(), giftBatch()))
	assert.Len(t, pub.sent, 1)
}

func TestDispatcherWithDelivery(t *testing.T) {
	client, _ := newRedis(t)
	pub := &fakePublisher{}
	delivery := NewDelivery(pub, client, zap.NewNop())
	d := New(delivery.Deliver, zap.NewNop(), WithDefaultLevel(LevelLow))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(ctx, "room_1", events.EmojiSent, events.EmojiSentPayload{Emoji: "🔥"}))
	}
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "emoji-sent-batch", pub.sent[0].event)
	assert.Equal(t, 5, pub.sent[0].payload.(events.BatchPayload).Count)
}
