package health

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer implements grpc.health.v1.Health over the Checker for load balancers and Kubernetes probes.
// Only the overall service ("") is known.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewGRPCServer returns a health server backed by c.
func NewGRPCServer(c *Checker) *GRPCServer {
	return &GRPCServer{checker: c}
}

// Check reports SERVING when the checker passes, NOT_SERVING otherwise, and
// SERVICE_UNKNOWN for named services.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVICE_UNKNOWN}, nil
	}
	if err := s.checker.Check(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
