package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dlqMaxLen caps the dead-letter stream; older entries are trimmed approximately.
const dlqMaxLen = 10000

// EmitToDLQ records an undeliverable event on the dead-letter stream so it can
// be inspected or replayed later.
func EmitToDLQ(ctx context.Context, client *Client, eventType, roomID string, payload []byte, cause error) error {
	values := map[string]interface{}{
		"event_type": eventType,
		"room_id":    roomID,
		"event":      string(payload),
		"error":      fmt.Sprintf("%v", cause),
		"failed_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		MaxLen: dlqMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		client.log.Error("Failed to emit to DLQ",
			zap.Error(err),
			zap.String("event_type", eventType),
			zap.String("room_id", roomID),
		)
	}
	return err
}
