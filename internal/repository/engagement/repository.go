// Package engagement stores polls, questions, gifts and emoji events.
//
// UpdatePoll and UpdateQuestion are the only mutation paths for the two
// aggregates. Each runs the supplied function under a per-document write lock
// held by the store, so concurrent writers of one document are serialized while
// different documents proceed independently.
package engagement

import (
	"context"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/models"
)

// PollMutation mutates a poll in place. Returning an error aborts the update.
type PollMutation func(p *models.Poll) error

// QuestionMutation mutates a question in place. Returning an error aborts the update.
type QuestionMutation func(q *models.Question) error

// Repository is the durable engagement store.
type Repository interface {
	CreatePoll(ctx context.Context, p *models.Poll) error
	GetPoll(ctx context.Context, id string) (*models.Poll, error)
	ListPolls(ctx context.Context, roomID string) ([]*models.Poll, error)
	// UpdatePoll loads the poll, applies fn under the document lock, bumps
	// Revision, persists and returns the stored result.
	UpdatePoll(ctx context.Context, id string, fn PollMutation) (*models.Poll, error)
	// ListExpiredPolls returns ids of polls still flagged active whose expiry is at or before now.
	ListExpiredPolls(ctx context.Context, now time.Time, limit int) ([]string, error)

	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestions(ctx context.Context, roomID string) ([]*models.Question, error)
	UpdateQuestion(ctx context.Context, id string, fn QuestionMutation) (*models.Question, error)

	AppendGift(ctx context.Context, g *models.Gift) error
	GetGift(ctx context.Context, id string) (*models.Gift, error)
	// MarkGiftProcessed flips Processed exactly once.
	MarkGiftProcessed(ctx context.Context, id string, at time.Time) (*models.Gift, error)
	AppendEmoji(ctx context.Context, e *models.EmojiEvent) error
	ListEmoji(ctx context.Context, roomID string, limit int) ([]*models.EmojiEvent, error)

	PingContext(ctx context.Context) error
}
