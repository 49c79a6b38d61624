package graceful

import (
	"context"
	"fmt"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// SuccessContext wraps a successful result with the context it was produced in.
type SuccessContext struct {
	Code      codes.Code
	Message   string
	Context   map[string]interface{}
	Result    interface{}
	Timestamp time.Time
}

func (s *SuccessContext) String() string {
	return fmt.Sprintf("%s (code: %s, result: %v)", s.Message, s.Code.String(), s.Result)
}

// WrapSuccess creates a SuccessContext with context fields, message, and result.
func WrapSuccess(ctx context.Context, msg string, result interface{}) *SuccessContext {
	return &SuccessContext{
		Code:      codes.OK,
		Message:   msg,
		Result:    result,
		Context:   utils.GetContextFields(ctx),
		Timestamp: time.Now().UTC(),
	}
}

// LogAndWrapSuccess logs the success at debug level and returns a SuccessContext.
// Results are not logged; they can carry participant text.
func LogAndWrapSuccess(ctx context.Context, log *zap.Logger, msg string, result interface{}, fields ...zap.Field) *SuccessContext {
	sc := WrapSuccess(ctx, msg, result)
	if log == nil {
		return sc
	}
	zapFields := make([]zap.Field, 0, len(sc.Context)+len(fields))
	for k, v := range sc.Context {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	zapFields = append(zapFields, fields...)
	log.Debug(msg, zapFields...)
	return sc
}
