package models

import "time"

// GlobalReceiver marks an emoji addressed to the whole room.
const GlobalReceiver = "global"

// Gift is an append-only gift record. Processed is set once by settlement.
type Gift struct {
	ID           string     `json:"id"`
	RoomID       string     `json:"roomId"`
	SenderID     string     `json:"senderId"`
	SenderName   string     `json:"senderName"`
	ReceiverID   string     `json:"receiverId"`
	ReceiverName string     `json:"receiverName"`
	GiftType     string     `json:"giftType"`
	GiftName     string     `json:"giftName"`
	GiftValue    int64      `json:"giftValue"`
	Message      string     `json:"message,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Processed    bool       `json:"processed"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}

// EmojiEvent is an append-only emoji reaction.
type EmojiEvent struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	ReceiverID   string    `json:"receiverId,omitempty"`
	ReceiverName string    `json:"receiverName,omitempty"`
	Emoji        string    `json:"emoji"`
	Message      string    `json:"message,omitempty"`
	IsGlobal     bool      `json:"isGlobal"`
	CreatedAt    time.Time `json:"createdAt"`
}
