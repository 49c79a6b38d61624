// Package vote holds the pure aggregate mutations for polls and questions.
//
// Nothing here locks or performs I/O. Callers run these functions inside the
// repository's per-document update so that concurrent votes on one aggregate
// are serialized by storage.
package vote

import (
	"math"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/samber/lo"
)

// NewPoll builds an active poll. A positive duration (seconds) sets ExpiresAt.
func NewPoll(roomID, createdBy, question string, options []string, multipleChoice bool, duration int, now time.Time) *models.Poll {
	p := &models.Poll{
		ID:               utils.NewID(),
		RoomID:           roomID,
		Question:         question,
		Options:          make([]models.Option, 0, len(options)),
		CreatedBy:        createdBy,
		IsMultipleChoice: multipleChoice,
		Duration:         duration,
		IsActive:         true,
		CreatedAt:        now,
	}
	for _, text := range options {
		p.Options = append(p.Options, models.Option{ID: utils.NewID(), Text: text, Voters: []string{}})
	}
	if duration > 0 {
		exp := now.Add(time.Duration(duration) * time.Second)
		p.ExpiresAt = &exp
	}
	return p
}

// IsOpen reports whether p still accepts votes at now.
func IsOpen(p *models.Poll, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

// CastVote records voterID's vote for optionID. On a single choice poll the
// voter is first removed from every other option. Voting an option the voter
// already holds changes nothing.
func CastVote(p *models.Poll, optionID, voterID string, now time.Time) (models.PollResults, error) {
	if !IsOpen(p, now) {
		return models.PollResults{}, errors.ErrPollExpired
	}
	target, ok := p.Option(optionID)
	if !ok {
		return models.PollResults{}, errors.ErrInvalidOption
	}

	if !p.IsMultipleChoice {
		for i := range p.Options {
			o := &p.Options[i]
			if o.ID != optionID && lo.Contains(o.Voters, voterID) {
				o.Voters = lo.Without(o.Voters, voterID)
			}
		}
	}
	if !lo.Contains(target.Voters, voterID) {
		target.Voters = append(target.Voters, voterID)
	}

	recount(p)
	return Results(p, now), nil
}

// End deactivates p. It reports false when the poll was already inactive, so
// exactly one caller observes the transition.
func End(p *models.Poll, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	p.IsActive = false
	ended := now
	p.EndedAt = &ended
	return true
}

// Expired reports whether p is still flagged active although its expiry has passed.
func Expired(p *models.Poll, now time.Time) bool {
	return p.IsActive && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Results computes the tally snapshot of p.
func Results(p *models.Poll, now time.Time) models.PollResults {
	res := models.PollResults{
		Options:    make([]models.OptionResult, 0, len(p.Options)),
		TotalVotes: p.TotalVotes,
		Status:     models.PollStatusActive,
	}
	if !IsOpen(p, now) {
		res.Status = models.PollStatusEnded
	}
	for _, o := range p.Options {
		res.Options = append(res.Options, models.OptionResult{
			ID:         o.ID,
			Text:       o.Text,
			Votes:      o.Votes,
			Percentage: percentage(o.Votes, p.TotalVotes),
		})
	}
	return res
}

func percentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}

func recount(p *models.Poll) {
	total := 0
	for i := range p.Options {
		p.Options[i].Votes = len(p.Options[i].Voters)
		total += p.Options[i].Votes
	}
	p.TotalVotes = total
}
