package interaction

import (
	"context"
	"strings"

	"github.com/nmxmxh/ovasabi-live/internal/service/expiry"
	"github.com/nmxmxh/ovasabi-live/internal/service/ratelimit"
	"github.com/nmxmxh/ovasabi-live/internal/service/vote"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"go.uber.org/zap"
)

// CreatePoll persists a new poll, schedules its expiry and announces it.
func (s *Service) CreatePoll(ctx context.Context, actor Actor, in CreatePollInput) (p *models.Poll, err error) {
	ctx, done := s.begin(ctx, events.CmdCreatePoll, actor)
	defer func() { done(err) }()

	in.Question = strings.TrimSpace(in.Question)
	in.Options = trimAll(in.Options)
	if err := s.validate(in); err != nil {
		return nil, err
	}

	p = vote.NewPoll(actor.RoomID, actor.ParticipantID, in.Question, in.Options, in.IsMultipleChoice, in.Duration, s.now())
	if err := s.repo.CreatePoll(ctx, p); err != nil {
		return nil, err
	}
	if s.finalizer != nil {
		// the store scan still finds the poll if this fails
		if err := s.finalizer.Schedule(ctx, p); err != nil {
			s.log.Warn("Failed to schedule poll expiry", zap.String("poll_id", p.ID), zap.Error(err))
		}
	}
	s.cacheResults(ctx, p, vote.Results(p, s.now()))
	s.publish(ctx, p.RoomID, events.PollCreated, events.NewPollCreated(p))

	s.log.Info("Poll created",
		zap.String("poll_id", p.ID),
		zap.String("room_id", p.RoomID),
		zap.Int("options", len(p.Options)),
		zap.Int("duration", p.Duration))
	return p, nil
}

// VotePoll records a vote and broadcasts the new tally. A vote on a poll past
// its expiry finalizes the poll on the spot.
func (s *Service) VotePoll(ctx context.Context, actor Actor, in VotePollInput) (res models.PollResults, err error) {
	ctx, done := s.begin(ctx, events.CmdVotePoll, actor)
	defer func() { done(err) }()

	if err := s.validate(in); err != nil {
		return models.PollResults{}, err
	}
	if err := s.admit(ctx, actor, ratelimit.TypePollVote); err != nil {
		return models.PollResults{}, err
	}

	now := s.now()
	var lapsed bool
	p, err := s.repo.UpdatePoll(ctx, in.PollID, func(p *models.Poll) error {
		if p.RoomID != actor.RoomID {
			return apperrors.ErrPollNotFound
		}
		lapsed = vote.Expired(p, now)
		var verr error
		res, verr = vote.CastVote(p, in.OptionID, actor.ParticipantID, now)
		return verr
	})
	if err != nil {
		if lapsed && s.finalizer != nil {
			if _, _, ferr := s.finalizer.Finalize(ctx, in.PollID, expiry.ReasonExpired); ferr != nil {
				s.log.Warn("Failed to finalize lapsed poll", zap.String("poll_id", in.PollID), zap.Error(ferr))
			}
		}
		return models.PollResults{}, err
	}

	s.cacheResults(ctx, p, res)
	s.publish(ctx, p.RoomID, events.PollVoteUpdated, events.PollResultsPayload{PollID: p.ID, Results: res})
	return res, nil
}

// EndPoll ends a poll on behalf of its creator. Ending an already ended poll
// returns the final results without a second broadcast.
func (s *Service) EndPoll(ctx context.Context, actor Actor, in PollRef) (res models.PollResults, err error) {
	ctx, done := s.begin(ctx, events.CmdEndPoll, actor)
	defer func() { done(err) }()

	if err := s.validate(in); err != nil {
		return models.PollResults{}, err
	}
	p, err := s.roomPoll(ctx, actor, in.PollID)
	if err != nil {
		return models.PollResults{}, err
	}
	if p.CreatedBy != actor.ParticipantID {
		return models.PollResults{}, apperrors.ErrNotPollOwner
	}

	if s.finalizer == nil {
		return models.PollResults{}, apperrors.New("poll finalizer not configured")
	}
	p, _, err = s.finalizer.Finalize(ctx, p.ID, expiry.ReasonEnded)
	if err != nil {
		return models.PollResults{}, err
	}
	return vote.Results(p, s.now()), nil
}

// GetPollResults returns the current tally of a poll in the actor's room,
// served from the results cache when one is configured.
func (s *Service) GetPollResults(ctx context.Context, actor Actor, in PollRef) (res models.PollResults, err error) {
	ctx, done := s.begin(ctx, events.CmdGetPollResults, actor)
	defer func() { done(err) }()

	if err := s.validate(in); err != nil {
		return models.PollResults{}, err
	}
	if s.results != nil {
		// poll ids are UUIDs
		if !utils.ValidateUUID(in.PollID) {
			return models.PollResults{}, apperrors.ErrPollNotFound
		}
		return s.results.Load(ctx, actor.RoomID, in.PollID)
	}
	p, err := s.roomPoll(ctx, actor, in.PollID)
	if err != nil {
		return models.PollResults{}, err
	}
	return vote.Results(p, s.now()), nil
}

// ListPolls returns the polls of the actor's room.
func (s *Service) ListPolls(ctx context.Context, actor Actor) ([]*models.Poll, error) {
	return s.repo.ListPolls(ctx, actor.RoomID)
}

func (s *Service) roomPoll(ctx context.Context, actor Actor, pollID string) (*models.Poll, error) {
	p, err := s.repo.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if p.RoomID != actor.RoomID {
		return nil, apperrors.ErrPollNotFound
	}
	return p, nil
}
