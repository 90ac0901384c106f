package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "storefront.v1.Storefront"

const DefaultCheckInterval = 10 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewServer returns a gRPC server exposing the standard health service and
// reflection. Serving status starts as NOT_SERVING until the first check.
func NewServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

type HealthChecker struct {
	health   *health.Server
	pingers  []Pinger
	interval time.Duration
	log      *zap.Logger
}

func NewHealthChecker(hs *health.Server, log *zap.Logger, pingers ...Pinger) *HealthChecker {
	return &HealthChecker{health: hs, pingers: pingers, interval: DefaultCheckInterval, log: log.Named("health")}
}

// Run checks immediately and then every interval until ctx is cancelled, when
// it marks the server NOT_SERVING for good.
func (c *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx)
	for {
		select {
		case <-ticker.C:
			c.check(ctx)
		case <-ctx.Done():
			c.health.Shutdown()
			return
		}
	}
}

func (c *HealthChecker) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for _, p := range c.pingers {
		if err := p.Ping(ctx); err != nil {
			c.log.Warn("dependency unhealthy", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}

	c.health.SetServingStatus("", status)
	c.health.SetServingStatus(ServiceName, status)
	return status
}
