package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// ServiceName is the name reported by the health service besides the overall "" entry.
const ServiceName = "s2s-tracker"

const probeInterval = 15 * time.Second

// Server exposes grpc.health.v1 with a status that follows database reachability.
type Server struct {
	DB     *gorm.DB
	Health *health.Server
	GRPC   *grpc.Server
}

func NewServer(db *gorm.DB) *Server {
	s := &Server{
		DB:     db,
		Health: health.NewServer(),
		GRPC:   grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.GRPC, s.Health)
	return s
}

// Probe pings the database once and publishes the result.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.ping(ctx); err != nil {
		zap.L().Warn("Health probe failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.Health.SetServingStatus("", status)
	s.Health.SetServingStatus(ServiceName, status)
	return status
}

func (s *Server) ping(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("no database")
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Serve probes once, keeps probing in the background and serves on lis until Stop.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)
	go s.watch(ctx)

	zap.L().Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	return s.GRPC.Serve(lis)
}

func (s *Server) Stop() {
	s.Health.Shutdown()
	s.GRPC.GracefulStop()
}

// StartGRPCServer listens on port and serves the health service. It blocks.
func StartGRPCServer(ctx context.Context, port string, srv *Server) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := srv.Serve(ctx, lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
