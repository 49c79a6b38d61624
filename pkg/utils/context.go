package utils

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single inbound command.
const DefaultTimeout = 5 * time.Second

type contextKey string

const (
	roomIDKey        = contextKey("room_id")
	participantIDKey = contextKey("participant_id")
	commandKey       = contextKey("command")
)

// WithRoom tags ctx with the room and participant a command came from.
func WithRoom(ctx context.Context, roomID, participantID string) context.Context {
	ctx = context.WithValue(ctx, roomIDKey, roomID)
	return context.WithValue(ctx, participantIDKey, participantID)
}

// WithCommand tags ctx with the inbound command type.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// GetStringFromContext returns the string stored under key, or "".
func GetStringFromContext(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(contextKey(key)).(string)
	return v
}

// GetContextFields extracts common fields from context for logging and error context.
func GetContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}
	for _, key := range []contextKey{roomIDKey, participantIDKey, commandKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields[string(key)] = v
		}
	}
	return fields
}
