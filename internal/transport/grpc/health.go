package transportgrpc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "board.identity"

const (
	defaultHealthInterval = 10 * time.Second
	defaultHealthTimeout  = 2 * time.Second
)

// DependencyCheck pings one backing store.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthReporter keeps the grpc.health.v1 status in line with dependency health.
type HealthReporter struct {
	server   *health.Server
	checks   []DependencyCheck
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	serving bool
}

// NewHealthReporter builds a reporter that starts out NOT_SERVING until the first refresh.
func NewHealthReporter(checks []DependencyCheck, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	server := health.NewServer()
	server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthReporter{
		server:   server,
		checks:   checks,
		interval: interval,
		timeout:  defaultHealthTimeout,
		logger:   logger,
	}
}

// Server exposes the health service for registration.
func (r *HealthReporter) Server() *health.Server {
	return r.server
}

// Refresh runs every check once and publishes the combined result.
func (r *HealthReporter) Refresh(ctx context.Context) bool {
	serving := true
	for _, check := range r.checks {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := check.Check(checkCtx)
		cancel()
		if err != nil {
			serving = false
			r.logger.Warn("dependency check failed", zap.String("dependency", check.Name), zap.Error(err))
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)

	r.mu.Lock()
	changed := r.serving != serving
	r.serving = serving
	r.mu.Unlock()
	if changed {
		r.logger.Info("grpc health status changed", zap.String("status", status.String()))
	}

	return serving
}

// Run refreshes on an interval until ctx is done, then marks everything NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
