package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"jobtrackr/backend/internal/health"
)

// RegisterServices registers the gRPC services with s. The service only exposes
// grpc.health.v1.Health, backed by the same readiness checker as GET /healthz.
// Nothing is registered when deps.Health is nil.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health == nil {
		return
	}
	healthpb.RegisterHealthServer(s, health.NewGRPCServer(deps.Health))
}
