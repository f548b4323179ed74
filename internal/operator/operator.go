// Package operator serves a minimal read-only health surface over a Unix
// domain socket: the standard gRPC health-checking service, reporting
// SERVING or NOT_SERVING for the daemon. It exposes no uptime, restart
// counts, ring events, anomaly content, or ledger entries — only the
// daemon's serving status, which is ambient ops tooling rather than a query
// interface over anomaly data.
package operator

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aodv2/aodv2/internal/observability"
)

// ServiceName is the health-checking service name daemon components report
// status under.
const ServiceName = "aodv2"

// Server is the operator-facing status/health endpoint.
type Server struct {
	socketPath string
	health     *health.Server
	grpcServer *grpc.Server
	metrics    *observability.Metrics
	log        *zap.Logger
}

// New builds a Server listening on socketPath once Run is called.
func New(socketPath string, metrics *observability.Metrics, log *zap.Logger) *Server {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h)

	return &Server{
		socketPath: socketPath,
		health:     h,
		grpcServer: gs,
		metrics:    metrics,
		log:        log.Named("operator"),
	}
}

// SetNotServing marks the daemon unhealthy, e.g. once shutdown begins.
func (s *Server) SetNotServing() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Run listens on the configured Unix socket and serves until ctx is
// cancelled. The socket path is removed before listening (stale sockets
// from an unclean previous shutdown) and on return.
func (s *Server) Run(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %s: %w", s.socketPath, err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)

	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		s.log.Warn("socket chmod failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		s.SetNotServing()
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			s.grpcServer.Stop()
		}
	}()

	s.log.Info("operator status server listening", zap.String("socket", s.socketPath))
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("operator: serve failed: %w", err)
	}
	return nil
}
