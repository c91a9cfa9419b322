// Package grpcserver runs the standard gRPC health service next to the HTTP
// API so orchestrators can probe the process over gRPC.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	GRPC   *grpc.Server
	Health *health.Server
	name   string
	log    *zap.Logger
}

// New registers health and reflection. The service starts NOT_SERVING until
// SetServing(true) is called.
func New(serviceName string, log *zap.Logger) *Server {
	s := &Server{
		GRPC:   grpc.NewServer(),
		Health: health.NewServer(),
		name:   serviceName,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.GRPC, s.Health)
	reflection.Register(s.GRPC)
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the per-service health status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(s.name, st)
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server starting", zap.String("addr", lis.Addr().String()))
	return s.GRPC.Serve(lis)
}

// Shutdown drains in-flight RPCs and force-stops when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.GRPC.Stop()
		return ctx.Err()
	}
}

// WatchReady polls ready every interval and mirrors it into the health status
// until ctx is done.
func (s *Server) WatchReady(ctx context.Context, interval time.Duration, ready func() error) {
	check := func() {
		err := ready()
		if err != nil {
			s.log.Debug("grpc health not serving", zap.Error(err))
		}
		s.SetServing(err == nil)
	}
	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}
