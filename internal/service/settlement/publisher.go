// Package settlement hands persisted gifts to the downstream settlement
// process over Kafka and records its acknowledgements.
//
// Publishing is best effort: a gift that cannot be handed off is still
// persisted and broadcast, and stays unprocessed in the store.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventGiftSettlement is the event header value of requests.
const EventGiftSettlement = "gift.settlement.requested"

// Request is the message value published per gift.
type Request struct {
	GiftID     string    `json:"giftId"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	GiftType   string    `json:"giftType"`
	GiftValue  int64     `json:"giftValue"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Publisher hands a gift to settlement.
type Publisher interface {
	PublishGift(ctx context.Context, g *models.Gift) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes settlement requests keyed by room, so the gifts of one room
// land on one partition in order.
type Kafka struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	return newKafka(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}, topic, log)
}

func newKafka(w messageWriter, topic string, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	return &Kafka{writer: w, topic: topic, log: log.With(zap.String("module", "settlement"), zap.String("topic", topic))}
}

// PublishGift implements Publisher.
func (k *Kafka) PublishGift(ctx context.Context, g *models.Gift) error {
	value, err := json.Marshal(Request{
		GiftID:     g.ID,
		RoomID:     g.RoomID,
		SenderID:   g.SenderID,
		ReceiverID: g.ReceiverID,
		GiftType:   g.GiftType,
		GiftValue:  g.GiftValue,
		CreatedAt:  g.CreatedAt,
	})
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(g.RoomID),
		Value:   value,
		Time:    g.CreatedAt,
		Headers: []kafka.Header{{Key: "event", Value: []byte(EventGiftSettlement)}},
	})
	if err != nil {
		metrics.SettlementPublishes.WithLabelValues("failed").Inc()
		k.log.Warn("Gift settlement hand-off failed", zap.String("gift_id", g.ID), zap.String("room_id", g.RoomID), zap.Error(err))
		return fmt.Errorf("publish gift %s: %w", g.ID, err)
	}
	metrics.SettlementPublishes.WithLabelValues("published").Inc()
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Nop drops every gift. It is used when no brokers are configured.
type Nop struct{}

// PublishGift implements Publisher.
func (Nop) PublishGift(context.Context, *models.Gift) error {
	metrics.SettlementPublishes.WithLabelValues("skipped").Inc()
	return nil
}

// Close implements Publisher.
func (Nop) Close() error { return nil }
