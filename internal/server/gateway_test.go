package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nmxmxh/ovasabi-live/internal/service/interaction"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/health"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/nmxmxh/ovasabi-live/pkg/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	actor   interaction.Actor
	command string
	payload string
	room    string
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeHandler) Handle(ctx context.Context, actor interaction.Actor, command string, payload json.RawMessage) (interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{
		actor:   actor,
		command: command,
		payload: string(payload),
		room:    utils.GetStringFromContext(ctx, "room_id"),
	})
	f.mu.Unlock()

	switch command {
	case events.CmdSendEmoji:
		return map[string]string{"emoji": "🔥"}, nil
	case events.CmdSendGift:
		return nil, apperrors.ErrRateLimited
	case events.CmdVotePoll:
		return nil, apperrors.ErrInvalidOption
	case events.CmdEndPoll:
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "update poll")
	}
	return nil, apperrors.Wrapf(interaction.ErrUnknownCommand, "%q", command)
}

func (f *fakeHandler) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type gatewayFixture struct {
	rooms   *ws.Manager
	handler *fakeHandler
	srv     *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	rooms := ws.NewManager(zap.NewNop())
	handler := &fakeHandler{}
	gw := NewGateway(rooms, handler, "", 8, zap.NewNop())
	checker := health.NewHealthChecker(time.Second)
	srv := httptest.NewServer(NewMux(gw, "ovasabi-live", checker, zap.NewNop()))
	t.Cleanup(func() {
		rooms.CloseAll()
		srv.Close()
	})
	return &gatewayFixture{rooms: rooms, handler: handler, srv: srv}
}

func (f *gatewayFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestGateway_AckCarriesResult(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "/ws/room-1/u1?name=Ada")

	send(t, conn, `{"type":"send-emoji","requestId":"r1","payload":{"emoji":"🔥"}}`)
	frame := readFrame(t, conn)

	assert.Equal(t, events.ReplyAck, frame["type"])
	assert.Equal(t, "r1", frame["requestId"])
	assert.Equal(t, map[string]interface{}{"emoji": "🔥"}, frame["payload"])

	calls := f.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, interaction.Actor{RoomID: "room-1", ParticipantID: "u1", Name: "Ada"}, calls[0].actor)
	assert.Equal(t, `{"emoji":"🔥"}`, calls[0].payload)
	assert.Equal(t, "room-1", calls[0].room, "command context is tagged with the room")
}

func TestGateway_NameDefaultsToParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "/ws/room-1/u2")

	send(t, conn, `{"type":"send-emoji","requestId":"r1","payload":{}}`)
	readFrame(t, conn)

	calls := f.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "u2", calls[0].actor.Name)
}

func TestGateway_ErrorReplies(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		typ     string
		code    string
		reason  string
		message string
	}{
		{
			name:  "rate limited",
			frame: `{"type":"send-gift","requestId":"r1","payload":{}}`,
			typ:   events.ReplyRateLimited,
		},
		{
			name:    "validation",
			frame:   `{"type":"vote-poll","requestId":"r1","payload":{}}`,
			typ:     events.ReplyError,
			code:    "InvalidArgument",
			reason:  "validation_failed",
			message: apperrors.ErrInvalidOption.Error(),
		},
		{
			name:    "storage failure",
			frame:   `{"type":"end-poll","requestId":"r1","payload":{}}`,
			typ:     events.ReplyError,
			code:    "Unavailable",
			reason:  "storage_unavailable",
			message: "update poll: storage unavailable",
		},
		{
			name:   "unknown command",
			frame:  `{"type":"dance","requestId":"r1"}`,
			typ:    events.ReplyError,
			code:   "InvalidArgument",
			reason: "validation_failed",
		},
		{
			name:   "malformed frame",
			frame:  `not json`,
			typ:    events.ReplyError,
			code:   "InvalidArgument",
			reason: "validation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t)
			conn := f.dial(t, "/ws/room-1/u1")

			send(t, conn, tt.frame)
			frame := readFrame(t, conn)

			assert.Equal(t, tt.typ, frame["type"])
			if tt.typ == events.ReplyRateLimited {
				assert.Equal(t, "r1", frame["requestId"])
				assert.Equal(t, "send-gift", frame["command"])
				return
			}
			assert.Equal(t, tt.code, frame["code"])
			assert.Equal(t, tt.reason, frame["reason"])
			if tt.message != "" {
				assert.Equal(t, tt.message, frame["message"])
			}
		})
	}
}

func TestGateway_RoomBroadcastReachesSocket(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "/ws/room-9/u1")

	require.Eventually(t, func() bool {
		return len(f.rooms.Members("room-9")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	env, err := events.NewEnvelope("room-9", events.EmojiSent, map[string]string{"emoji": "👏"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, f.rooms.Publish("room-9", env))

	frame := readFrame(t, conn)
	assert.Equal(t, events.EmojiSent, frame["type"])
}

func TestGateway_LeaveOnClose(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "/ws/room-3/u1")
	require.Eventually(t, func() bool {
		return len(f.rooms.Members("room-3")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	assert.Eventually(t, func() bool {
		return len(f.rooms.Members("room-3")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_RejectsBadPath(t *testing.T) {
	f := newGatewayFixture(t)

	for _, path := range []string{"/ws/", "/ws/room-1", "/ws/room-1/u1/extra"} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestMux_HealthAndMetrics(t *testing.T) {
	f := newGatewayFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "UP", body["status"])

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseSocketPath(t *testing.T) {
	tests := []struct {
		path        string
		room, owner string
		ok          bool
	}{
		{"/ws/room-1/u1", "room-1", "u1", true},
		{"/ws/room-1/u1/", "room-1", "u1", true},
		{"/ws/room-1", "", "", false},
		{"/ws//u1", "", "", false},
	}
	for _, tt := range tests {
		room, pid, ok := parseSocketPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.room, room, tt.path)
		assert.Equal(t, tt.owner, pid, tt.path)
	}
}

func TestExtractServiceAndMethod(t *testing.T) {
	svc, method := extractServiceAndMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", svc)
	assert.Equal(t, "Check", method)
}
