package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/nmxmxh/ovasabi-live/internal/service/interaction"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/graceful"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/logger"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/nmxmxh/ovasabi-live/pkg/ws"
	"go.uber.org/zap"
)

const defaultSendBuffer = 32

// CommandHandler runs one inbound command for an actor.
type CommandHandler interface {
	Handle(ctx context.Context, actor interaction.Actor, command string, payload json.RawMessage) (interface{}, error)
}

type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type ackFrame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId"`
	Payload   interface{} `json:"payload,omitempty"`
}

type errorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

type rateLimitedFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Command   string `json:"command"`
}

// Gateway upgrades /ws/{roomID}/{participantID} requests and runs the socket's
// command loop. Commands from one socket are handled in arrival order.
type Gateway struct {
	rooms      *ws.Manager
	handler    CommandHandler
	upgrader   *websocket.Upgrader
	sendBuffer int
	log        *zap.Logger
}

// NewGateway wires the socket gateway to the room registry and command handler.
func NewGateway(rooms *ws.Manager, handler CommandHandler, allowedOrigins string, sendBuffer int, log *zap.Logger) *Gateway {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	log = logger.Module(log, "gateway")
	return &Gateway{
		rooms:      rooms,
		handler:    handler,
		upgrader:   ws.NewUpgrader(allowedOrigins, log),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, g.log, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	roomID, participantID, ok := parseSocketPath(r.URL.Path)
	if !ok {
		writeJSONError(w, g.log, http.StatusNotFound, "expected /ws/{roomID}/{participantID}", nil,
			zap.String("path", r.URL.Path))
		return
	}
	actor := interaction.Actor{
		RoomID:        roomID,
		ParticipantID: participantID,
		Name:          strings.TrimSpace(r.URL.Query().Get("name")),
	}
	if actor.Name == "" {
		actor.Name = participantID
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		g.log.Warn("WebSocket upgrade failed", zap.Error(err), zap.String("room_id", roomID))
		return
	}
	log := g.log.With(zap.String("room_id", roomID), zap.String("participant_id", participantID))
	conn := ws.NewConn(wsConn, log, g.sendBuffer)
	g.rooms.Join(roomID, participantID, conn)
	log.Info("WebSocket connection established",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("room_members", len(g.rooms.Members(roomID))))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		if err := conn.WritePump(ctx); err != nil && ctx.Err() == nil {
			log.Debug("Write pump stopped", zap.Error(err))
		}
	}()

	err = conn.ReadPump(func(msg []byte) {
		g.handleFrame(ctx, actor, conn, msg)
	})
	g.rooms.Leave(roomID, participantID, conn)
	if err != nil {
		log.Warn("WebSocket read error", zap.Error(err))
	}
	log.Info("WebSocket connection closed")
}

func (g *Gateway) handleFrame(ctx context.Context, actor interaction.Actor, conn *ws.Conn, msg []byte) {
	var in inboundFrame
	if err := json.Unmarshal(msg, &in); err != nil || in.Type == "" {
		cause := apperrors.Wrap(apperrors.ErrValidation, "frame must be a JSON object with a type")
		g.reply(ctx, conn, g.errorReply(ctx, in, cause))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, utils.DefaultTimeout)
	defer cancel()
	ctx = utils.WithCommand(utils.WithRoom(ctx, actor.RoomID, actor.ParticipantID), in.Type)
	ctx = apperrors.WithRequestID(ctx, in.RequestID)
	ctx = logger.WithContext(ctx, in.Type)
	log := logger.FromContext(ctx, g.log)

	out, err := g.handler.Handle(ctx, actor, in.Type, in.Payload)
	switch {
	case err == nil:
		sc := graceful.LogAndWrapSuccess(ctx, log, in.Type+" handled", out, zap.String("request_id", in.RequestID))
		g.reply(ctx, conn, ackFrame{Type: events.ReplyAck, RequestID: in.RequestID, Payload: sc.Result})
	case apperrors.Is(err, apperrors.ErrRateLimited):
		g.reply(ctx, conn, rateLimitedFrame{Type: events.ReplyRateLimited, RequestID: in.RequestID, Command: in.Type})
	default:
		g.reply(ctx, conn, g.errorReply(ctx, in, err))
	}
}

func (g *Gateway) errorReply(ctx context.Context, in inboundFrame, cause error) errorFrame {
	ce := graceful.LogAndWrap(ctx, logger.FromContext(ctx, g.log), "Command failed", cause,
		zap.String("request_id", in.RequestID))
	msg := cause.Error()
	if ce.Reason == graceful.ReasonInternal {
		msg = "internal error"
	}
	return errorFrame{
		Type:      events.ReplyError,
		RequestID: in.RequestID,
		Code:      ce.Code.String(),
		Reason:    ce.Reason,
		Message:   msg,
	}
}

func (g *Gateway) reply(ctx context.Context, conn *ws.Conn, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		_ = apperrors.LogWithError(ctx, g.log, "Failed to encode reply frame", err)
		return
	}
	if !conn.Send(data) {
		g.log.Debug("Reply frame dropped")
	}
}

// parseSocketPath splits /ws/{roomID}/{participantID}.
func parseSocketPath(path string) (roomID, participantID string, ok bool) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/ws/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
