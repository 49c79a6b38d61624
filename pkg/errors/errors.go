package errors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error kinds. Every error returned by the engagement layer wraps exactly one of these.
var (
	// ErrNotFound is returned when a poll or question does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned when a poll is past its expiry or has been ended.
	ErrExpired = errors.New("expired")
	// ErrValidation is returned when input falls outside configured bounds.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is returned when a sender exceeded the window ceiling.
	ErrRateLimited = errors.New("rate limited")
	// ErrStorageUnavailable is returned when a durable write or read failed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Specific errors.
var (
	// ErrPollNotFound is returned when a poll cannot be found.
	ErrPollNotFound = Wrap(ErrNotFound, "poll")
	// ErrQuestionNotFound is returned when a question cannot be found.
	ErrQuestionNotFound = Wrap(ErrNotFound, "question")
	// ErrGiftNotFound is returned when a gift cannot be found.
	ErrGiftNotFound = Wrap(ErrNotFound, "gift")
	// ErrPollExpired is returned when voting on an inactive or elapsed poll.
	ErrPollExpired = Wrap(ErrExpired, "poll")
	// ErrInvalidOption is returned when the option id is not part of the poll.
	ErrInvalidOption = Wrap(ErrValidation, "unknown poll option")
	// ErrUnknownActivityLevel is returned for an activity level outside low|medium|high.
	ErrUnknownActivityLevel = Wrap(ErrValidation, "unknown activity level")
	// ErrGiftAlreadyProcessed is returned when settlement marks a gift twice.
	ErrGiftAlreadyProcessed = Wrap(ErrValidation, "gift already processed")
	// ErrNotPollOwner is returned when someone other than the creator ends a poll.
	ErrNotPollOwner = Wrap(ErrForbidden, "only the poll creator can end it")
)

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context. The result matches err under errors.Is.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind returns the error kind err wraps, or nil when it wraps none of them.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrExpired, ErrValidation, ErrRateLimited, ErrStorageUnavailable, ErrForbidden} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// LogWithError logs the error with context and returns a wrapped error. Use this for standardized error logging across services.
func LogWithError(ctx context.Context, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		if ctx != nil {
			if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
		}
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}

type contextKey string

const requestIDKey = contextKey("request_id")

// WithRequestID stores the request id picked up by LogWithError.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}
