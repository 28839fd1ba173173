package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

// OrderStreamService is the health service name reflecting the order socket.
const OrderStreamService = "talagas.OrderStream"

// Server wraps the gRPC server exposing the standard health service. The
// overall status and OrderStreamService follow the order connection state.
type Server struct {
	gsrv        *grpc.Server
	health      *health.Server
	logger      domain.Logger
	cfgProvider config.Provider
	appCtx      context.Context
	cancelCtx   context.CancelFunc
}

// NewServer creates a new gRPC server instance.
func NewServer(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) (*Server, error) {
	gsrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gsrv, hs)

	serverLifecycleCtx, serverLifecycleCancel := context.WithCancel(appCtx)
	s := &Server{
		gsrv:        gsrv,
		health:      hs,
		logger:      logger,
		cfgProvider: cfgProvider,
		appCtx:      serverLifecycleCtx,
		cancelCtx:   serverLifecycleCancel,
	}
	s.SetConnectionStatus(domain.ConnectionStatus{State: domain.StateDisconnected})
	return s, nil
}

// SetConnectionStatus is a connection state observer.
func (s *Server) SetConnectionStatus(status domain.ConnectionStatus) {
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if status.State == domain.StateConnected {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(OrderStreamService, serving)
}

// Start starts the gRPC server in a new goroutine.
func (s *Server) Start() error {
	grpcPort := s.cfgProvider.Get().Server.GRPCPort
	if grpcPort == 0 {
		s.logger.Warn(s.appCtx, "gRPC port is not configured or is 0. gRPC server will not start.")
		return fmt.Errorf("gRPC port not configured")
	}
	return s.Serve(fmt.Sprintf(":%d", grpcPort))
}

// Serve listens on addr and serves until GracefulStop.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error(s.appCtx, "Failed to listen for gRPC", "address", addr, "error", err)
		return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}
	s.ServeListener(lis)
	return nil
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(lis net.Listener) {
	s.logger.Info(s.appCtx, "gRPC server starting", "address", lis.Addr().String())

	safego.Execute(s.appCtx, s.logger, "GRPCServerServe", func() {
		if err := s.gsrv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error(s.appCtx, "gRPC server failed to serve", "error", err)
		}
		s.cancelCtx()
	})

	safego.Execute(s.appCtx, s.logger, "GRPCServerContextWatcher", func() {
		<-s.appCtx.Done()
		s.health.Shutdown()
		s.gsrv.GracefulStop()
		s.logger.Info(context.Background(), "gRPC server gracefully stopped")
	})
}

// GracefulStop cancels the server lifecycle context, which stops the server.
func (s *Server) GracefulStop() {
	s.cancelCtx()
}
