package events

import (
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
)

// EventEnvelope is the wrapper for every event published to a room channel.
type EventEnvelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope encodes payload into an envelope stamped with now.
func NewEnvelope(roomID, eventType string, payload interface{}, now time.Time) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventEnvelope{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (e *EventEnvelope) Decode(dst interface{}) error {
	return json.Unmarshal(e.Payload, dst)
}
