// Package broadcast fans events out to every socket attached to a room.
//
// Publishing is fire and forget: there is no receipt, retry or persistence.
// Callers persist first and publish after a successful write.
package broadcast

import (
	"context"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/ws"
	"go.uber.org/zap"
)

// Publisher delivers one named event to a room.
type Publisher interface {
	Publish(ctx context.Context, roomID, event string, payload interface{}) error
}

// Local publishes straight into this process's room registry. It suits a
// single instance deployment.
type Local struct {
	rooms *ws.Manager
	now   func() time.Time
	log   *zap.Logger
}

// NewLocal creates a publisher over rooms.
func NewLocal(rooms *ws.Manager, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{rooms: rooms, now: time.Now, log: log.With(zap.String("module", "broadcast"))}
}

// Publish implements Publisher.
func (l *Local) Publish(_ context.Context, roomID, event string, payload interface{}) error {
	env, err := events.NewEnvelope(roomID, event, payload, l.now())
	if err != nil {
		return err
	}
	n := l.rooms.Publish(roomID, env)
	l.log.Debug("Published room event", zap.String("room_id", roomID), zap.String("event", event), zap.Int("delivered", n))
	return nil
}
