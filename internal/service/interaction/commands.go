package interaction

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
)

// Actor is the participant a command came from.
type Actor struct {
	RoomID        string
	ParticipantID string
	Name          string
}

// CreatePollInput is the create-poll payload.
type CreatePollInput struct {
	Question         string   `json:"question" validate:"required,max=500"`
	Options          []string `json:"options" validate:"min=2,max=10,dive,required,max=200"`
	IsMultipleChoice bool     `json:"isMultipleChoice"`
	Duration         int      `json:"duration" validate:"min=0,max=86400"`
}

// PollRef addresses a poll (end-poll, get-poll-results).
type PollRef struct {
	PollID string `json:"pollId" validate:"required,max=64"`
}

// VotePollInput is the vote-poll payload.
type VotePollInput struct {
	PollID   string `json:"pollId" validate:"required,max=64"`
	OptionID string `json:"optionId" validate:"required,max=64"`
}

// AskQuestionInput is the ask-question payload.
type AskQuestionInput struct {
	Question string `json:"question" validate:"required,max=500"`
}

// QuestionRef addresses a question (upvote-question, downvote-question).
type QuestionRef struct {
	QuestionID string `json:"questionId" validate:"required,max=64"`
}

// AnswerQuestionInput is the answer-question payload.
type AnswerQuestionInput struct {
	QuestionID string `json:"questionId" validate:"required,max=64"`
	Answer     string `json:"answer" validate:"required,max=2000"`
}

// HighlightQuestionInput is the highlight-question payload.
type HighlightQuestionInput struct {
	QuestionID    string `json:"questionId" validate:"required,max=64"`
	IsHighlighted bool   `json:"isHighlighted"`
}

// SendGiftInput is the send-gift payload.
type SendGiftInput struct {
	ReceiverID   string `json:"receiverId" validate:"required,max=64"`
	ReceiverName string `json:"receiverName" validate:"max=100"`
	GiftType     string `json:"giftType" validate:"required,max=64"`
	GiftName     string `json:"giftName" validate:"required,max=64"`
	GiftValue    int64  `json:"giftValue" validate:"min=1,max=100000"`
	Message      string `json:"message" validate:"max=280"`
}

// SendEmojiInput is the send-emoji payload. An empty receiver makes the
// reaction global.
type SendEmojiInput struct {
	Emoji        string `json:"emoji" validate:"required,max=16"`
	ReceiverID   string `json:"receiverId" validate:"max=64"`
	ReceiverName string `json:"receiverName" validate:"max=100"`
	Message      string `json:"message" validate:"max=280"`
	IsGlobal     bool   `json:"isGlobal"`
}

// SetActivityLevelInput is the set-activity-level payload.
type SetActivityLevelInput struct {
	Level string `json:"level" validate:"required,oneof=low medium high"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks in against its bounds. Failures wrap ErrValidation.
func (s *Service) validate(in interface{}) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !apperrors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.ErrValidation, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), apperrors.ErrValidation)
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
