package interaction

import (
	"context"

	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
)

// ErrUnknownCommand is returned by Handle for a command type it does not know.
var ErrUnknownCommand = apperrors.Wrap(apperrors.ErrValidation, "unknown command")

// Handle decodes payload as the input of command and runs it. The returned
// value is the command's acknowledgement payload.
func (s *Service) Handle(ctx context.Context, actor Actor, command string, payload json.RawMessage) (interface{}, error) {
	switch command {
	case events.CmdCreatePoll:
		return run(ctx, actor, payload, s.CreatePoll)
	case events.CmdVotePoll:
		return run(ctx, actor, payload, s.VotePoll)
	case events.CmdEndPoll:
		return run(ctx, actor, payload, s.EndPoll)
	case events.CmdGetPollResults:
		return run(ctx, actor, payload, s.GetPollResults)
	case events.CmdAskQuestion:
		return run(ctx, actor, payload, s.AskQuestion)
	case events.CmdUpvoteQuestion:
		return run(ctx, actor, payload, s.UpvoteQuestion)
	case events.CmdDownvoteQuestion:
		return run(ctx, actor, payload, s.DownvoteQuestion)
	case events.CmdAnswerQuestion:
		return run(ctx, actor, payload, s.AnswerQuestion)
	case events.CmdHighlightQuestion:
		return run(ctx, actor, payload, s.HighlightQuestion)
	case events.CmdSendGift:
		return run(ctx, actor, payload, s.SendGift)
	case events.CmdSendEmoji:
		return run(ctx, actor, payload, s.SendEmoji)
	case events.CmdSetActivityLevel:
		return run(ctx, actor, payload, s.SetActivityLevel)
	}
	return nil, apperrors.Wrapf(ErrUnknownCommand, "%q", command)
}

func run[In, Out any](ctx context.Context, actor Actor, payload json.RawMessage, fn func(context.Context, Actor, In) (Out, error)) (interface{}, error) {
	var in In
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrValidation, "malformed payload: %v", err)
		}
	}
	out, err := fn(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}
