package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (f *fakeClient) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testEnvelope(t *testing.T, roomID string) *events.EventEnvelope {
	t.Helper()
	env, err := events.NewEnvelope(roomID, events.PollCreated, map[string]string{"pollId": "p1"}, time.Unix(100, 0))
	require.NoError(t, err)
	return env
}

func TestManager_PublishFansOutToRoomOnly(t *testing.T) {
	m := NewManager(zap.NewNop())
	a, b, other := &fakeClient{}, &fakeClient{}, &fakeClient{}
	m.Join("room_1", "u1", a)
	m.Join("room_1", "u2", b)
	m.Join("room_2", "u3", other)

	delivered := m.Publish("room_1", testEnvelope(t, "room_1"))
	assert.Equal(t, 2, delivered)
	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Empty(t, other.received())

	var env events.EventEnvelope
	require.NoError(t, json.Unmarshal(a.received()[0], &env))
	assert.Equal(t, events.PollCreated, env.Type)
	assert.Equal(t, "room_1", env.RoomID)
}

func TestManager_SlowClientDropsWithoutBlocking(t *testing.T) {
	m := NewManager(zap.NewNop())
	fast, slow := &fakeClient{}, &fakeClient{full: true}
	m.Join("room_1", "fast", fast)
	m.Join("room_1", "slow", slow)

	assert.Equal(t, 1, m.Publish("room_1", testEnvelope(t, "room_1")))
	assert.Len(t, fast.received(), 1)
	assert.Empty(t, slow.received())
}

func TestManager_PublishToEmptyRoom(t *testing.T) {
	m := NewManager(zap.NewNop())
	assert.Equal(t, 0, m.Publish("nobody", testEnvelope(t, "nobody")))
}

func TestManager_JoinReplacesPreviousSocket(t *testing.T) {
	m := NewManager(zap.NewNop())
	first, second := &fakeClient{}, &fakeClient{}
	m.Join("room_1", "u1", first)
	m.Join("room_1", "u1", second)

	assert.True(t, first.isClosed())
	assert.Equal(t, []string{"u1"}, m.Members("room_1"))

	// the replaced socket's cleanup must not evict the new one
	m.Leave("room_1", "u1", first)
	assert.Equal(t, []string{"u1"}, m.Members("room_1"))

	m.Leave("room_1", "u1", second)
	assert.Empty(t, m.Members("room_1"))
	assert.True(t, second.isClosed())
	assert.Equal(t, 0, roomCount(m))
}

func TestManager_LeaveAndMembers(t *testing.T) {
	m := NewManager(zap.NewNop())
	clients := map[string]*fakeClient{}
	for _, id := range []string{"c", "a", "b"} {
		clients[id] = &fakeClient{}
		m.Join("room_1", id, clients[id])
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Members("room_1"))

	m.Leave("room_1", "b", clients["b"])
	m.Leave("room_1", "missing", &fakeClient{})
	m.Leave("no_room", "a", clients["a"])
	assert.Equal(t, []string{"a", "c"}, m.Members("room_1"))
	assert.True(t, clients["b"].isClosed())
	assert.False(t, clients["a"].isClosed())
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(zap.NewNop())
	a, b := &fakeClient{}, &fakeClient{}
	m.Join("room_1", "u1", a)
	m.Join("room_2", "u2", b)

	m.CloseAll()
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Equal(t, 0, roomCount(m))
}

func roomCount(m *Manager) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
