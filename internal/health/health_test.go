package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker(t *testing.T) {
	testCases := []struct {
		name    string
		db      Pinger
		policy  PolicyChecker
		wantErr string
	}{
		{"no dependencies", nil, nil, ""},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, ""},
		{"db down", &mockPinger{pingErr: errors.New("refused")}, &mockPolicyChecker{}, "database"},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("eval")}, "policy engine"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewChecker(tc.db, tc.policy).Check(context.Background())
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Check err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

type mockCache struct {
	err   error
	calls int
}

func (m *mockCache) Ping(context.Context) error {
	m.calls++
	return m.err
}

func TestChecker_ChallengeCache(t *testing.T) {
	up := &mockCache{}
	if err := NewChecker(&mockPinger{}, nil).WithChallengeCache(up).Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if up.calls != 1 {
		t.Errorf("cache pinged %d times, want 1", up.calls)
	}

	down := &mockCache{err: errors.New("connection refused")}
	err := NewChecker(nil, &mockPolicyChecker{}).WithChallengeCache(down).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "challenge store") {
		t.Errorf("Check err = %v, want a challenge store error", err)
	}

	rec := httptest.NewRecorder()
	HTTPHandler(NewChecker(nil, nil).WithChallengeCache(down), discardLogger())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz with redis down = %d, want 503", rec.Code)
	}
}

func TestHTTPHandler(t *testing.T) {
	healthy := HTTPHandler(NewChecker(&mockPinger{}, nil), discardLogger())
	rec := httptest.NewRecorder()
	healthy(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	down := HTTPHandler(NewChecker(&mockPinger{pingErr: errors.New("password authentication failed")}, nil), discardLogger())
	rec = httptest.NewRecorder()
	down(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("dependency error must not be exposed")
	}
}

func TestGRPCServer_Check(t *testing.T) {
	ctx := context.Background()

	resp, err := NewGRPCServer(NewChecker(nil, nil)).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	resp, err = NewGRPCServer(NewChecker(&mockPinger{pingErr: errors.New("down")}, nil)).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}

	resp, err = NewGRPCServer(NewChecker(nil, nil)).Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		t.Errorf("status = %v, want SERVICE_UNKNOWN", resp.GetStatus())
	}
}
