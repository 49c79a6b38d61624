package events

import (
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/models"
)

// PollOption is an option as announced on poll-created.
type PollOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PollCreatedPayload is the poll-created payload.
type PollCreatedPayload struct {
	PollID           string       `json:"pollId"`
	Question         string       `json:"question"`
	Options          []PollOption `json:"options"`
	IsMultipleChoice bool         `json:"isMultipleChoice"`
	ExpiresAt        *time.Time   `json:"expiresAt"`
}

// PollResultsPayload is the poll-vote-updated and poll-ended payload.
type PollResultsPayload struct {
	PollID  string             `json:"pollId"`
	Results models.PollResults `json:"results"`
}

// QuestionAskedPayload is the question-asked payload.
type QuestionAskedPayload struct {
	QuestionID  string    `json:"questionId"`
	Question    string    `json:"question"`
	AskedBy     string    `json:"askedBy"`
	AskedByName string    `json:"askedByName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// QuestionUpdatedPayload is the question-updated payload.
type QuestionUpdatedPayload struct {
	QuestionID string `json:"questionId"`
	models.QuestionScore
}

// QuestionAnsweredPayload is the question-answered payload.
type QuestionAnsweredPayload struct {
	QuestionID     string    `json:"questionId"`
	Answer         string    `json:"answer"`
	AnsweredBy     string    `json:"answeredBy"`
	AnsweredByName string    `json:"answeredByName"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// QuestionHighlightedPayload is the question-highlighted payload.
type QuestionHighlightedPayload struct {
	QuestionID    string `json:"questionId"`
	IsHighlighted bool   `json:"isHighlighted"`
}

// GiftSentPayload is the gift-sent payload.
type GiftSentPayload struct {
	GiftID       string    `json:"giftId"`
	GiftType     string    `json:"giftType"`
	GiftName     string    `json:"giftName"`
	GiftValue    int64     `json:"giftValue"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	ReceiverID   string    `json:"receiverId"`
	ReceiverName string    `json:"receiverName"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EmojiSentPayload is the emoji-sent payload.
type EmojiSentPayload struct {
	EmojiID      string    `json:"emojiId"`
	Emoji        string    `json:"emoji"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	ReceiverID   string    `json:"receiverId,omitempty"`
	ReceiverName string    `json:"receiverName,omitempty"`
	Message      string    `json:"message,omitempty"`
	IsGlobal     bool      `json:"isGlobal"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BatchPayload is a flushed batch of same-type events.
type BatchPayload struct {
	RoomID string        `json:"roomId"`
	Type   string        `json:"type"`
	Count  int           `json:"count"`
	Events []interface{} `json:"events"`
}

// ActivityChangedPayload is the room-activity-changed payload.
type ActivityChangedPayload struct {
	RoomID string `json:"roomId"`
	Level  string `json:"level"`
}

// NewPollCreated builds the poll-created payload.
func NewPollCreated(p *models.Poll) PollCreatedPayload {
	opts := make([]PollOption, 0, len(p.Options))
	for _, o := range p.Options {
		opts = append(opts, PollOption{ID: o.ID, Text: o.Text})
	}
	return PollCreatedPayload{
		PollID:           p.ID,
		Question:         p.Question,
		Options:          opts,
		IsMultipleChoice: p.IsMultipleChoice,
		ExpiresAt:        p.ExpiresAt,
	}
}

// NewQuestionAsked builds the question-asked payload.
func NewQuestionAsked(q *models.Question) QuestionAskedPayload {
	return QuestionAskedPayload{
		QuestionID:  q.ID,
		Question:    q.Question,
		AskedBy:     q.AskedBy,
		AskedByName: q.AskedByName,
		CreatedAt:   q.CreatedAt,
	}
}

// NewQuestionAnswered builds the question-answered payload.
func NewQuestionAnswered(q *models.Question) QuestionAnsweredPayload {
	p := QuestionAnsweredPayload{
		QuestionID:     q.ID,
		Answer:         q.Answer,
		AnsweredBy:     q.AnsweredBy,
		AnsweredByName: q.AnsweredByName,
	}
	if q.AnsweredAt != nil {
		p.AnsweredAt = *q.AnsweredAt
	}
	return p
}

// NewGiftSent builds the gift-sent payload.
func NewGiftSent(g *models.Gift) GiftSentPayload {
	return GiftSentPayload{
		GiftID:       g.ID,
		GiftType:     g.GiftType,
		GiftName:     g.GiftName,
		GiftValue:    g.GiftValue,
		SenderID:     g.SenderID,
		SenderName:   g.SenderName,
		ReceiverID:   g.ReceiverID,
		ReceiverName: g.ReceiverName,
		Message:      g.Message,
		CreatedAt:    g.CreatedAt,
	}
}

// NewEmojiSent builds the emoji-sent payload.
func NewEmojiSent(e *models.EmojiEvent) EmojiSentPayload {
	return EmojiSentPayload{
		EmojiID:      e.ID,
		Emoji:        e.Emoji,
		SenderID:     e.SenderID,
		SenderName:   e.SenderName,
		ReceiverID:   e.ReceiverID,
		ReceiverName: e.ReceiverName,
		Message:      e.Message,
		IsGlobal:     e.IsGlobal,
		CreatedAt:    e.CreatedAt,
	}
}
