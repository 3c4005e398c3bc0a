package rpc

import (
	"errors"
	"net"

	"github.com/wfunc/territory/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health key reported for the room server.
const ServiceName = "territory.RoomServer"

// Server exposes the standard gRPC health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	address    string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServerWithListener(listener), nil
}

func NewServerWithListener(listener net.Listener) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		listener:   listener,
		address:    listener.Addr().String(),
	}
}

// Start serves until Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("gRPC health server listening on %s", s.address)
	if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Log.Errorf("gRPC server stopped: %v", err)
		return
	}
	logger.Log.Info("gRPC server listener closed.")
}

// SetServing flips both the overall and the room server status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Stop() {
	logger.Log.Info("Stopping gRPC server.")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
