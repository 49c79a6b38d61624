package graceful

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Reasons carried on the wire next to the gRPC code.
const (
	ReasonNotFound           = "not_found"
	ReasonExpired            = "expired"
	ReasonValidationFailed   = "validation_failed"
	ReasonRateLimited        = "rate_limited"
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonForbidden          = "forbidden"
	ReasonInternal           = "internal"
)

// ContextError wraps an error with context, gRPC code, and structured fields.
type ContextError struct {
	Code    codes.Code
	Reason  string
	Message string
	Context map[string]interface{}
	Cause   error
}

func (e *ContextError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// GRPCStatus returns a gRPC status error for this error context.
func (e *ContextError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Error())
}

// Classify maps an error to its gRPC code and wire reason.
func Classify(err error) (codes.Code, string) {
	switch apperrors.Kind(err) {
	case apperrors.ErrNotFound:
		return codes.NotFound, ReasonNotFound
	case apperrors.ErrExpired:
		return codes.FailedPrecondition, ReasonExpired
	case apperrors.ErrValidation:
		return codes.InvalidArgument, ReasonValidationFailed
	case apperrors.ErrRateLimited:
		return codes.ResourceExhausted, ReasonRateLimited
	case apperrors.ErrStorageUnavailable:
		return codes.Unavailable, ReasonStorageUnavailable
	case apperrors.ErrForbidden:
		return codes.PermissionDenied, ReasonForbidden
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded, ReasonInternal
	}
	return codes.Internal, ReasonInternal
}

// WrapErr creates a ContextError with context fields, message, and cause; the code is derived from cause.
func WrapErr(ctx context.Context, msg string, cause error) *ContextError {
	code, reason := Classify(cause)
	return &ContextError{
		Code:    code,
		Reason:  reason,
		Message: msg,
		Cause:   cause,
		Context: utils.GetContextFields(ctx),
	}
}

// LogAndWrap logs the error with context and returns a ContextError.
// Client-side failures (not found, validation, expiry) are logged at debug level.
func LogAndWrap(ctx context.Context, log *zap.Logger, msg string, cause error, fields ...zap.Field) *ContextError {
	ce := WrapErr(ctx, msg, cause)
	if log == nil {
		return ce
	}
	zapFields := make([]zap.Field, 0, len(ce.Context)+len(fields)+2)
	for k, v := range ce.Context {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	zapFields = append(zapFields, fields...)
	zapFields = append(zapFields, zap.String("reason", ce.Reason))
	if cause != nil {
		zapFields = append(zapFields, zap.Error(cause))
	}
	switch ce.Code {
	case codes.Internal, codes.Unavailable, codes.DeadlineExceeded:
		log.Error(msg, zapFields...)
	default:
		log.Debug(msg, zapFields...)
	}
	return ce
}

// ToStatusError converts an error (ContextError or generic) to a gRPC status error.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.GRPCStatus().Err()
	}
	code, _ := Classify(err)
	return status.Error(code, err.Error())
}
