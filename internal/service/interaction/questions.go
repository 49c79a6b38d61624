package interaction

import (
	"context"
	"strings"

	"github.com/nmxmxh/ovasabi-live/internal/service/ratelimit"
	"github.com/nmxmxh/ovasabi-live/internal/service/vote"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"go.uber.org/zap"
)

// AskQuestion persists a question and announces it.
func (s *Service) AskQuestion(ctx context.Context, actor Actor, in AskQuestionInput) (q *models.Question, err error) {
	ctx, done := s.begin(ctx, events.CmdAskQuestion, actor)
	defer func() { done(err) }()

	in.Question = strings.TrimSpace(in.Question)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, actor, ratelimit.TypeQuestion); err != nil {
		return nil, err
	}

	q = vote.NewQuestion(actor.RoomID, actor.ParticipantID, actor.Name, in.Question, s.now())
	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	s.publish(ctx, q.RoomID, events.QuestionAsked, events.NewQuestionAsked(q))
	s.log.Debug("Question asked", zap.String("question_id", q.ID), zap.String("room_id", q.RoomID))
	return q, nil
}

// UpvoteQuestion toggles the actor's upvote.
func (s *Service) UpvoteQuestion(ctx context.Context, actor Actor, in QuestionRef) (models.QuestionScore, error) {
	return s.voteQuestion(ctx, events.CmdUpvoteQuestion, actor, in, vote.Upvote)
}

// DownvoteQuestion toggles the actor's downvote.
func (s *Service) DownvoteQuestion(ctx context.Context, actor Actor, in QuestionRef) (models.QuestionScore, error) {
	return s.voteQuestion(ctx, events.CmdDownvoteQuestion, actor, in, vote.Downvote)
}

func (s *Service) voteQuestion(
	ctx context.Context,
	command string,
	actor Actor,
	in QuestionRef,
	apply func(q *models.Question, userID string) models.QuestionScore,
) (score models.QuestionScore, err error) {
	ctx, done := s.begin(ctx, command, actor)
	defer func() { done(err) }()

	if err := s.validate(in); err != nil {
		return models.QuestionScore{}, err
	}
	if err := s.admit(ctx, actor, ratelimit.TypeQAVote); err != nil {
		return models.QuestionScore{}, err
	}

	q, err := s.repo.UpdateQuestion(ctx, in.QuestionID, func(q *models.Question) error {
		if q.RoomID != actor.RoomID {
			return apperrors.ErrQuestionNotFound
		}
		score = apply(q, actor.ParticipantID)
		return nil
	})
	if err != nil {
		return models.QuestionScore{}, err
	}
	s.publish(ctx, q.RoomID, events.QuestionUpdated, events.QuestionUpdatedPayload{QuestionID: q.ID, QuestionScore: score})
	return score, nil
}

// AnswerQuestion sets or replaces the answer of a question.
func (s *Service) AnswerQuestion(ctx context.Context, actor Actor, in AnswerQuestionInput) (q *models.Question, err error) {
	ctx, done := s.begin(ctx, events.CmdAnswerQuestion, actor)
	defer func() { done(err) }()

	in.Answer = strings.TrimSpace(in.Answer)
	if err := s.validate(in); err != nil {
		return nil, err
	}

	now := s.now()
	q, err = s.repo.UpdateQuestion(ctx, in.QuestionID, func(q *models.Question) error {
		if q.RoomID != actor.RoomID {
			return apperrors.ErrQuestionNotFound
		}
		vote.Answer(q, actor.ParticipantID, actor.Name, in.Answer, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, q.RoomID, events.QuestionAnswered, events.NewQuestionAnswered(q))
	return q, nil
}

// HighlightQuestion sets the highlight flag. Only an actual change is broadcast.
func (s *Service) HighlightQuestion(ctx context.Context, actor Actor, in HighlightQuestionInput) (q *models.Question, err error) {
	ctx, done := s.begin(ctx, events.CmdHighlightQuestion, actor)
	defer func() { done(err) }()

	if err := s.validate(in); err != nil {
		return nil, err
	}

	var changed bool
	q, err = s.repo.UpdateQuestion(ctx, in.QuestionID, func(q *models.Question) error {
		if q.RoomID != actor.RoomID {
			return apperrors.ErrQuestionNotFound
		}
		changed = vote.Highlight(q, in.IsHighlighted)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, q.RoomID, events.QuestionHighlighted, events.QuestionHighlightedPayload{QuestionID: q.ID, IsHighlighted: q.IsHighlighted})
	}
	return q, nil
}

// ListQuestions returns the questions of the actor's room.
func (s *Service) ListQuestions(ctx context.Context, actor Actor) ([]*models.Question, error) {
	return s.repo.ListQuestions(ctx, actor.RoomID)
}
