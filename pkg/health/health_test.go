package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// MockHealthCheck implements HealthCheck interface for testing
type MockHealthCheck struct {
	name  string
	err   error
	delay time.Duration
}

func (m *MockHealthCheck) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockHealthCheck) Name() string {
	return m.name
}

func TestHealthChecker_Check(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	hc.Register(&MockHealthCheck{name: "success"})
	hc.Register(&MockHealthCheck{name: "fail", err: errors.New("check failed")})

	results := hc.Check(context.Background())

	assert.Len(t, results, 2)
	assert.NoError(t, results["success"])
	assert.EqualError(t, results["fail"], "check failed")
	assert.Equal(t, StatusDown, Overall(results))
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker(20 * time.Millisecond)
	hc.Register(&MockHealthCheck{name: "slow", delay: time.Second})

	results := hc.Check(context.Background())
	assert.ErrorIs(t, results["slow"], context.DeadlineExceeded)
}

func TestPingCheck(t *testing.T) {
	called := false
	check := NewPingCheck("redis", PingFunc(func(context.Context) error {
		called = true
		return nil
	}))
	assert.Equal(t, "redis", check.Name())
	assert.NoError(t, check.Check(context.Background()))
	assert.True(t, called)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus Status
	}{
		{"all up", []HealthCheck{&MockHealthCheck{name: "redis"}, &MockHealthCheck{name: "postgres"}}, http.StatusOK, StatusUp},
		{"one down", []HealthCheck{&MockHealthCheck{name: "redis", err: errors.New("refused")}}, http.StatusServiceUnavailable, StatusDown},
		{"no checks", nil, http.StatusOK, StatusUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(time.Second)
			for _, c := range tt.checks {
				hc.Register(c)
			}
			rec := httptest.NewRecorder()
			Handler("engage", hc, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var rep report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
			assert.Equal(t, tt.wantStatus, rep.Status)
			assert.Equal(t, "engage", rep.Service)
			assert.Len(t, rep.Checks, len(tt.checks))
		})
	}
}

func TestReporter_GRPC(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	failing := &MockHealthCheck{name: "redis"}
	hc.Register(failing)
	rep := NewReporter("engage", hc, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, rep.Server())
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	assert.Equal(t, StatusUp, rep.Refresh(context.Background()))

	client, err := NewHealthCheckClient(lis.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.WaitForReady(context.Background(), 2*time.Second))

	failing.err = errors.New("down")
	assert.Equal(t, StatusDown, rep.Refresh(context.Background()))
	resp, err := client.Status(context.Background(), "engage")
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp)
}
