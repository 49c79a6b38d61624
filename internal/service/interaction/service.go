// Package interaction runs the inbound engagement commands of a room.
//
// Every command follows the same order: validate, rate limit, durable write,
// then broadcast. Poll and Q&A updates are broadcast directly once persisted;
// gifts and emoji are appended to the store and handed to the batching
// dispatcher. Nothing is announced that was not persisted.
package interaction

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nmxmxh/ovasabi-live/internal/repository/engagement"
	"github.com/nmxmxh/ovasabi-live/internal/service/broadcast"
	"github.com/nmxmxh/ovasabi-live/internal/service/dispatch"
	"github.com/nmxmxh/ovasabi-live/internal/service/expiry"
	"github.com/nmxmxh/ovasabi-live/internal/service/settlement"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Admitter decides whether an interaction is within its rate ceiling.
type Admitter interface {
	Admit(ctx context.Context, senderID, roomID, interactionType string) (bool, error)
}

// Batcher buffers fire-and-forget events per room.
type Batcher interface {
	Enqueue(ctx context.Context, roomID, eventType string, payload interface{}) error
	SetActivityLevel(roomID string, level dispatch.Level) error
}

// Deps are the collaborators of a Service. Results and Settlement are optional.
type Deps struct {
	Repo       engagement.Repository
	Limiter    Admitter
	Dispatcher Batcher
	Publisher  broadcast.Publisher
	Finalizer  *expiry.Finalizer
	Results    *ResultsCache
	Settlement settlement.Publisher
}

// Service handles engagement commands.
type Service struct {
	repo       engagement.Repository
	limiter    Admitter
	dispatcher Batcher
	publisher  broadcast.Publisher
	finalizer  *expiry.Finalizer
	results    *ResultsCache
	settlement settlement.Publisher

	validator *validator.Validate
	tracer    trace.Tracer
	now       func() time.Time
	log       *zap.Logger
}

// NewService wires a Service.
func NewService(deps Deps, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Settlement == nil {
		deps.Settlement = settlement.Nop{}
	}
	return &Service{
		repo:       deps.Repo,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		finalizer:  deps.Finalizer,
		results:    deps.Results,
		settlement: deps.Settlement,
		validator:  newValidator(),
		tracer:     tracing.Tracer("interaction"),
		now:        time.Now,
		log:        log.With(zap.String("module", "interaction")),
	}
}

// begin opens the span of one command and returns a func recording its outcome.
func (s *Service) begin(ctx context.Context, command string, actor Actor) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, command, trace.WithAttributes(
		attribute.String("room.id", actor.RoomID),
		attribute.String("participant.id", actor.ParticipantID),
	))
	start := time.Now()
	return ctx, func(err error) {
		metrics.InteractionLatency.WithLabelValues(command).Observe(time.Since(start).Seconds())
		metrics.Interactions.WithLabelValues(command, outcome(err)).Inc()
		if err != nil && !apperrors.Is(err, apperrors.ErrRateLimited) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func outcome(err error) string {
	switch apperrors.Kind(err) {
	case nil:
		if err != nil {
			return metrics.OutcomeFailed
		}
		return metrics.OutcomeOK
	case apperrors.ErrRateLimited:
		return metrics.OutcomeRateLimited
	case apperrors.ErrStorageUnavailable:
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}

// admit applies the rate limit of interactionType to actor. A rejected call
// returns ErrRateLimited; a limiter failure admits.
func (s *Service) admit(ctx context.Context, actor Actor, interactionType string) error {
	if s.limiter == nil {
		return nil
	}
	// the limiter logs its own failures and admits on them
	ok, _ := s.limiter.Admit(ctx, actor.ParticipantID, actor.RoomID, interactionType)
	if !ok {
		return apperrors.ErrRateLimited
	}
	return nil
}

// publish broadcasts after a successful write. Broadcast is fire and forget,
// so a failure is logged and never fails the command.
func (s *Service) publish(ctx context.Context, roomID, event string, payload interface{}) {
	if err := s.publisher.Publish(ctx, roomID, event, payload); err != nil {
		s.log.Warn("Broadcast failed", zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, roomID, event string, payload interface{}) {
	if err := s.dispatcher.Enqueue(ctx, roomID, event, payload); err != nil {
		s.log.Warn("Batch delivery failed", zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) cacheResults(ctx context.Context, p *models.Poll, res models.PollResults) {
	if s.results != nil {
		s.results.Store(ctx, p, res)
	}
}
