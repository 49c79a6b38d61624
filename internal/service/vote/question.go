package vote

import (
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/samber/lo"
)

// NewQuestion builds an unanswered question.
func NewQuestion(roomID, askedBy, askedByName, text string, now time.Time) *models.Question {
	return &models.Question{
		ID:          utils.NewID(),
		RoomID:      roomID,
		Question:    text,
		AskedBy:     askedBy,
		AskedByName: askedByName,
		Upvoters:    []string{},
		Downvoters:  []string{},
		CreatedAt:   now,
	}
}

// Upvote toggles userID's upvote. An existing downvote is moved across.
func Upvote(q *models.Question, userID string) models.QuestionScore {
	q.Upvoters, q.Downvoters = toggle(q.Upvoters, q.Downvoters, userID)
	return rescore(q)
}

// Downvote toggles userID's downvote. An existing upvote is moved across.
func Downvote(q *models.Question, userID string) models.QuestionScore {
	q.Downvoters, q.Upvoters = toggle(q.Downvoters, q.Upvoters, userID)
	return rescore(q)
}

// toggle removes userID from same when present; otherwise it drops userID from
// opposite and adds it to same.
func toggle(same, opposite []string, userID string) ([]string, []string) {
	if lo.Contains(same, userID) {
		return lo.Without(same, userID), opposite
	}
	return append(same, userID), lo.Without(opposite, userID)
}

// Score returns the current tally of q.
func Score(q *models.Question) models.QuestionScore {
	return models.QuestionScore{Upvotes: q.Upvotes, Downvotes: q.Downvotes, Score: q.Score()}
}

func rescore(q *models.Question) models.QuestionScore {
	q.Upvotes = len(q.Upvoters)
	q.Downvotes = len(q.Downvoters)
	return Score(q)
}

// Answer sets or overwrites the answer of q.
func Answer(q *models.Question, answererID, answererName, text string, now time.Time) {
	q.Answer = text
	q.AnsweredBy = answererID
	q.AnsweredByName = answererName
	at := now
	q.AnsweredAt = &at
	q.IsAnswered = true
}

// Highlight sets the highlight flag and reports whether it changed.
func Highlight(q *models.Question, on bool) bool {
	if q.IsHighlighted == on {
		return false
	}
	q.IsHighlighted = on
	return true
}
