// Package health exposes the gateway lifecycle over the standard gRPC health
// protocol so orchestrators can hold traffic until the cache is installed.
package health

import (
	"context"
	"errors"
	"net"

	logging "github.com/inconshreveable/log15"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"offline_gateway/internal/gateway"
	"offline_gateway/internal/obs"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "offline_gateway.Gateway"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     logging.Logger
}

func NewServer(logger logging.Logger) *Server {
	if logger == nil {
		logger = obs.NopLogger()
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	s := &Server{grpcServer: grpcServer, health: healthServer, logger: logger}
	s.SetState(gateway.StateUninstalled)
	return s
}

// StatusFor maps a lifecycle state to a serving status. Only an active
// gateway serves.
func StatusFor(state gateway.State) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if state == gateway.StateActive {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// SetState is meant to be registered with Gateway.OnStateChange.
func (s *Server) SetState(state gateway.State) {
	if s == nil {
		return
	}
	status := StatusFor(state)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Debug("health status updated", "state", state.String(), "status", status.String())
}

// Serve blocks until the listener fails or ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s == nil || listener == nil {
		return errors.New("health server or listener is nil")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return nil
	}
}

// Stop marks every service NOT_SERVING and drains open streams, forcing the
// close when ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}
