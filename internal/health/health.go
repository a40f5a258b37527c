// Package health exposes the standard gRPC health service for the bridge.
//
// The "scout.Listener" service follows the real-time connection. The overall
// service ("") additionally requires the optional journal database and event
// policy checks to pass.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/realtime"
)

// ListenerService is the health service name tracking the real-time connection.
const ListenerService = "scout.Listener"

const checkTimeout = 5 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the event policy filter).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Reporter tracks connection state and dependency checks and publishes them on a
// grpc health.Server.
type Reporter struct {
	server *health.Server
	db     Pinger
	policy PolicyChecker
	logger *slog.Logger

	mu        sync.Mutex
	state     realtime.ConnectionState
	depsReady bool
}

// NewReporter returns a Reporter. db and policy may be nil, in which case they are skipped.
// Everything reports NOT_SERVING until the listener connects.
func NewReporter(db Pinger, policy PolicyChecker, logger *slog.Logger) *Reporter {
	r := &Reporter{
		server:    health.NewServer(),
		db:        db,
		policy:    policy,
		logger:    logging.OrDefault(logger),
		state:     realtime.Disconnected,
		depsReady: true,
	}
	r.publishLocked()
	return r
}

// Server returns the underlying health server for registration.
func (r *Reporter) Server() *health.Server { return r.server }

// Update records the listener connection state.
func (r *Reporter) Update(state realtime.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.publishLocked()
}

// Check runs the dependency checks once and republishes the status.
func (r *Reporter) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var errs []error
	if r.db != nil {
		if err := r.db.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.policy != nil {
		if err := r.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		r.logger.Warn("health: readiness check failed", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.depsReady = err == nil
	r.publishLocked()
	return err
}

// Run checks dependencies every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	_ = r.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING everywhere and ignores later updates.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}

func (r *Reporter) publishLocked() {
	listener := healthpb.HealthCheckResponse_NOT_SERVING
	if r.state == realtime.Connected {
		listener = healthpb.HealthCheckResponse_SERVING
	}
	overall := listener
	if !r.depsReady {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus(ListenerService, listener)
	r.server.SetServingStatus("", overall)
}

// Serve runs a gRPC server with the health service on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, r *Reporter) error {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, r.Server())

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("health: gRPC server listening", "addr", lis.Addr().String())
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		r.Shutdown()
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
