package graceful

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   codes.Code
		reason string
	}{
		{"not found", apperrors.ErrPollNotFound, codes.NotFound, ReasonNotFound},
		{"expired", apperrors.ErrPollExpired, codes.FailedPrecondition, ReasonExpired},
		{"validation", apperrors.ErrInvalidOption, codes.InvalidArgument, ReasonValidationFailed},
		{"rate limited", apperrors.ErrRateLimited, codes.ResourceExhausted, ReasonRateLimited},
		{"storage", apperrors.Wrap(apperrors.ErrStorageUnavailable, "insert gift"), codes.Unavailable, ReasonStorageUnavailable},
		{"forbidden", apperrors.ErrNotPollOwner, codes.PermissionDenied, ReasonForbidden},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, ReasonInternal},
		{"unknown", errors.New("boom"), codes.Internal, ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reason := Classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestLogAndWrap(t *testing.T) {
	ctx := utils.WithRoom(context.Background(), "room-1", "u1")

	ce := LogAndWrap(ctx, zap.NewNop(), "vote-poll failed", apperrors.ErrPollNotFound)

	assert.Equal(t, codes.NotFound, ce.Code)
	assert.Equal(t, "room-1", ce.Context["room_id"])
	assert.Equal(t, "vote-poll failed: poll: not found", ce.Error())
	assert.ErrorIs(t, ce, apperrors.ErrNotFound)

	st, ok := status.FromError(ToStatusError(ce))
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Nil(t, ToStatusError(nil))
}

func TestLogAndWrapSuccess(t *testing.T) {
	ctx := utils.WithCommand(utils.WithRoom(context.Background(), "room-1", "u1"), "send-emoji")

	sc := LogAndWrapSuccess(ctx, zap.NewNop(), "send-emoji handled", map[string]string{"emoji": "🔥"})

	assert.Equal(t, codes.OK, sc.Code)
	assert.Equal(t, "send-emoji", sc.Context["command"])
	assert.Equal(t, "u1", sc.Context["participant_id"])
	assert.False(t, sc.Timestamp.IsZero())
}
