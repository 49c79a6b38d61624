package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Reporter mirrors HealthChecker results onto a gRPC health server.
type Reporter struct {
	server  *health.Server
	checker *HealthChecker
	service string
	log     *zap.Logger
}

// NewReporter creates a gRPC health server reflecting checker for service.
func NewReporter(service string, checker *HealthChecker, log *zap.Logger) *Reporter {
	return &Reporter{
		server:  health.NewServer(),
		checker: checker,
		service: service,
		log:     log,
	}
}

// Server returns the grpc_health_v1 implementation to register.
func (r *Reporter) Server() grpc_health_v1.HealthServer {
	return r.server
}

// Refresh runs the checks once and updates the serving status.
func (r *Reporter) Refresh(ctx context.Context) Status {
	status := Overall(r.checker.Check(ctx))
	serving := grpc_health_v1.HealthCheckResponse_SERVING
	if status != StatusUp {
		serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", serving)
	r.server.SetServingStatus(r.service, serving)
	return status
}

// Run refreshes the status every interval until ctx is done, then marks the service as shutting down.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			if s := r.Refresh(ctx); s != StatusUp && r.log != nil {
				r.log.Warn("Service not serving", zap.String("service", r.service))
			}
		}
	}
}
