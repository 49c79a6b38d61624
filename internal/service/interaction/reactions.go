package interaction

import (
	"context"
	"strings"

	"github.com/nmxmxh/ovasabi-live/internal/service/dispatch"
	"github.com/nmxmxh/ovasabi-live/internal/service/ratelimit"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"go.uber.org/zap"
)

// SendGift appends a gift, queues it for the next gift batch and hands it to
// settlement.
func (s *Service) SendGift(ctx context.Context, actor Actor, in SendGiftInput) (g *models.Gift, err error) {
	ctx, done := s.begin(ctx, events.CmdSendGift, actor)
	defer func() { done(err) }()

	in.Message = strings.TrimSpace(in.Message)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, actor, ratelimit.TypeGift); err != nil {
		return nil, err
	}

	g = &models.Gift{
		ID:           utils.NewID(),
		RoomID:       actor.RoomID,
		SenderID:     actor.ParticipantID,
		SenderName:   actor.Name,
		ReceiverID:   in.ReceiverID,
		ReceiverName: in.ReceiverName,
		GiftType:     in.GiftType,
		GiftName:     in.GiftName,
		GiftValue:    in.GiftValue,
		Message:      in.Message,
		CreatedAt:    s.now(),
	}
	if err := s.repo.AppendGift(ctx, g); err != nil {
		return nil, err
	}
	s.enqueue(ctx, g.RoomID, events.GiftSent, events.NewGiftSent(g))
	if err := s.settlement.PublishGift(ctx, g); err != nil {
		s.log.Warn("Gift left for settlement retry", zap.String("gift_id", g.ID), zap.Error(err))
	}
	return g, nil
}

// SendEmoji appends an emoji reaction and queues it for the next emoji batch.
func (s *Service) SendEmoji(ctx context.Context, actor Actor, in SendEmojiInput) (e *models.EmojiEvent, err error) {
	ctx, done := s.begin(ctx, events.CmdSendEmoji, actor)
	defer func() { done(err) }()

	in.Emoji = strings.TrimSpace(in.Emoji)
	in.Message = strings.TrimSpace(in.Message)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, actor, ratelimit.TypeEmoji); err != nil {
		return nil, err
	}

	e = &models.EmojiEvent{
		ID:           utils.NewID(),
		RoomID:       actor.RoomID,
		SenderID:     actor.ParticipantID,
		SenderName:   actor.Name,
		ReceiverID:   in.ReceiverID,
		ReceiverName: in.ReceiverName,
		Emoji:        in.Emoji,
		Message:      in.Message,
		IsGlobal:     in.IsGlobal || in.ReceiverID == "",
		CreatedAt:    s.now(),
	}
	if err := s.repo.AppendEmoji(ctx, e); err != nil {
		return nil, err
	}
	s.enqueue(ctx, e.RoomID, events.EmojiSent, events.NewEmojiSent(e))
	return e, nil
}

// SetActivityLevel switches the batching preset of the actor's room and
// announces it.
func (s *Service) SetActivityLevel(ctx context.Context, actor Actor, in SetActivityLevelInput) (level dispatch.Level, err error) {
	ctx, done := s.begin(ctx, events.CmdSetActivityLevel, actor)
	defer func() { done(err) }()

	in.Level = strings.ToLower(strings.TrimSpace(in.Level))
	if err := s.validate(in); err != nil {
		return "", err
	}
	level, err = dispatch.ParseLevel(in.Level)
	if err != nil {
		return "", err
	}
	if err := s.dispatcher.SetActivityLevel(actor.RoomID, level); err != nil {
		return "", err
	}
	s.publish(ctx, actor.RoomID, events.RoomActivityChanged, events.ActivityChangedPayload{RoomID: actor.RoomID, Level: string(level)})
	return level, nil
}
