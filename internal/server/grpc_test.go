package server

import (
	"testing"

	"google.golang.org/grpc"

	"jobtrackr/backend/internal/health"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, _ interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	mockReg := &mockServiceRegistrar{}
	RegisterServices(mockReg, Deps{Health: health.NewChecker(nil, nil)})

	if len(mockReg.services) != 1 || mockReg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("registered services = %v, want [grpc.health.v1.Health]", mockReg.services)
	}
}

func TestRegisterServices_NilDependencies(t *testing.T) {
	mockReg := &mockServiceRegistrar{}
	RegisterServices(mockReg, Deps{})
	if len(mockReg.services) != 0 {
		t.Errorf("registered services = %v, want none", mockReg.services)
	}
}
