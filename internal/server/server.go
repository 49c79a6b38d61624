package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/graceful"
	"github.com/nmxmxh/ovasabi-live/pkg/health"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// NewMux routes the socket gateway, the JSON health report and Prometheus metrics.
func NewMux(gw *Gateway, service string, checker *health.HealthChecker, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws/", gw)
	mux.Handle("/healthz", health.Handler(service, checker, log))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ServeHTTP runs an HTTP server on addr until ctx is done, then shuts it down.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second, // Mitigate Slowloris
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server for WebSocket, health and metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	// hijacked sockets are not tracked by Shutdown; the room registry closes them
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// ServeHealthGRPC exposes the gRPC health service on addr until ctx is done.
func ServeHealthGRPC(ctx context.Context, addr string, reporter *health.Reporter, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryServerInterceptor(log)))
	grpc_health_v1.RegisterHealthServer(srv, reporter.Server())

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	log.Info("Starting gRPC health server", zap.String("address", addr))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// UnaryServerInterceptor traces each call and maps returned errors to gRPC statuses.
func UnaryServerInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		startTime := time.Now()
		svcName, methodName := extractServiceAndMethod(info.FullMethod)

		spanCtx, span := otel.Tracer("grpc").Start(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(spanCtx, req)
		if svcName != grpc_health_v1.Health_ServiceDesc.ServiceName || err != nil {
			log.Info("handled request",
				zap.String("service", svcName),
				zap.String("method", methodName),
				zap.Float64("duration_seconds", time.Since(startTime).Seconds()),
				zap.Error(err),
			)
		}
		return resp, graceful.ToStatusError(err)
	}
}

func extractServiceAndMethod(fullMethod string) (serviceName, methodName string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[:i], fullMethod[i+1:]
	}
	return "unknown", fullMethod
}

// writeJSONError writes a JSON error body for requests rejected before upgrade.
func writeJSONError(w http.ResponseWriter, log *zap.Logger, status int, msg string, err error, contextFields ...zap.Field) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err != nil {
		contextFields = append(contextFields, zap.Error(err))
	}
	log.Debug(msg, contextFields...)
	body := map[string]string{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Error("Failed to write error response", zap.Error(encErr))
	}
}
