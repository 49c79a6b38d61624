package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// HealthCheck represents a health check
type HealthCheck interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthChecker manages health checks
type HealthChecker struct {
	checks  []HealthCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// NewHealthChecker creates a new health checker; each check is bounded by timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		checks:  make([]HealthCheck, 0),
		timeout: timeout,
	}
}

// Register adds a new health check
func (hc *HealthChecker) Register(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// Check runs all health checks concurrently.
func (hc *HealthChecker) Check(ctx context.Context) map[string]error {
	hc.mu.RLock()
	checks := append([]HealthCheck(nil), hc.checks...)
	hc.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(checks))
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, hc.timeout)
			defer cancel()
			err := check.Check(cctx)
			mu.Lock()
			results[check.Name()] = err
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return results
}

// Overall folds check results into a single status.
func Overall(results map[string]error) Status {
	for _, err := range results {
		if err != nil {
			return StatusDown
		}
	}
	return StatusUp
}

// Pinger is implemented by *sql.DB and the redis client wrapper.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PingCheck is a HealthCheck backed by a Pinger.
type PingCheck struct {
	name string
	p    Pinger
}

// NewPingCheck creates a named check.
func NewPingCheck(name string, p Pinger) *PingCheck {
	return &PingCheck{name: name, p: p}
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.p.PingContext(ctx)
}

func (c *PingCheck) Name() string {
	return c.name
}
