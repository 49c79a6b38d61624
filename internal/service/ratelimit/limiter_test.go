package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T, opts ...Option) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(redis.Wrap(rdb, zap.NewNop()), zap.NewNop(), opts...), mr
}

func TestAdmit_GiftCeiling(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()

	admitted := 0
	for i := 0; i < 6; i++ {
		ok, err := l.Admit(ctx, "u1", "room_1", TypeGift)
		require.NoError(t, err)
		if ok {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestAdmit_Ceilings(t *testing.T) {
	tests := []struct {
		typ   string
		limit int
	}{
		{TypeGift, 5},
		{TypeEmoji, 20},
		{TypeQAVote, 10},
		{TypePollVote, 10},
		{TypeQuestion, 5},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			l, _ := newLimiter(t)
			ctx := context.Background()
			for i := 0; i < tt.limit; i++ {
				ok, err := l.Admit(ctx, "u1", "room_1", tt.typ)
				require.NoError(t, err)
				require.True(t, ok, "call %d", i+1)
			}
			ok, err := l.Admit(ctx, "u1", "room_1", tt.typ)
			require.NoError(t, err)
			assert.False(t, ok, "call %d must be rejected", tt.limit+1)
		})
	}
}

func TestAdmit_WindowExpiryResets(t *testing.T) {
	l, mr := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Admit(ctx, "u1", "room_1", TypeGift)
		require.NoError(t, err)
	}
	ok, _ := l.Admit(ctx, "u1", "room_1", TypeGift)
	require.False(t, ok)

	assert.True(t, mr.Exists("rate:interaction:gift:room_1:u1"))
	assert.InDelta(t, 60, mr.TTL("rate:interaction:gift:room_1:u1").Seconds(), 1)

	mr.FastForward(61 * time.Second)
	ok, err := l.Admit(ctx, "u1", "room_1", TypeGift)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(t, WithLimits(map[string]int64{TypeGift: 1, TypeEmoji: 1}))
	ctx := context.Background()

	for _, c := range []struct{ sender, room, typ string }{
		{"u1", "room_1", TypeGift},
		{"u2", "room_1", TypeGift},
		{"u1", "room_2", TypeGift},
		{"u1", "room_1", TypeEmoji},
	} {
		ok, err := l.Admit(ctx, c.sender, c.room, c.typ)
		require.NoError(t, err)
		assert.True(t, ok, "%+v", c)
	}
}

func TestAdmit_UnlimitedType(t *testing.T) {
	l, mr := newLimiter(t)
	for i := 0; i < 100; i++ {
		ok, err := l.Admit(context.Background(), "u1", "room_1", "answer")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Empty(t, mr.Keys())

	_, limited := l.Limit("answer")
	assert.False(t, limited)
	n, limited := l.Limit(TypeEmoji)
	assert.True(t, limited)
	assert.Equal(t, int64(20), n)
}

func TestAdmit_ConcurrentCallsNeverExceedCeiling(t *testing.T) {
	l, _ := newLimiter(t)
	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Admit(context.Background(), "u1", "room_1", TypeEmoji)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), admitted)
}

type brokenCounter struct{}

func (brokenCounter) IncrementWithTTL(context.Context, string, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestAdmit_FailsOpen(t *testing.T) {
	l := New(brokenCounter{}, zap.NewNop())
	ok, err := l.Admit(context.Background(), "u1", "room_1", TypeGift)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestAdmit_CustomWindow(t *testing.T) {
	l, mr := newLimiter(t, WithWindow(10*time.Second), WithLimits(map[string]int64{TypeGift: 1}))
	ctx := context.Background()

	ok, _ := l.Admit(ctx, "u1", "room_1", TypeGift)
	require.True(t, ok)
	ok, _ = l.Admit(ctx, "u1", "room_1", TypeGift)
	require.False(t, ok)

	mr.FastForward(11 * time.Second)
	ok, _ = l.Admit(ctx, "u1", "room_1", TypeGift)
	assert.True(t, ok)
}
