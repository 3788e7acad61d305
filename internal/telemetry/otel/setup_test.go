package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"jobtrackr/backend/internal/telemetry"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "jobtrackr-auth", false)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("local providers should be non-nil")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown = %v", err)
		}
	}
}

func TestParseCollector(t *testing.T) {
	testCases := []struct {
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{"localhost:4317", false, "localhost:4317", true, false},
		{"http://collector:4317/v1/traces", false, "collector:4317", true, false},
		{"https://collector.example.com:4317", false, "collector.example.com:4317", false, false},
		{"https://collector.example.com:4317", true, "collector.example.com:4317", true, false},
		{"://invalid", false, "", false, true},
		{"http://[invalid", false, "", false, true},
		{"http://", false, "", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.endpoint, func(t *testing.T) {
			c, err := parseCollector(tc.endpoint, tc.override)
			if tc.wantErr {
				if err == nil {
					t.Errorf("parseCollector(%q) should fail", tc.endpoint)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCollector(%q): %v", tc.endpoint, err)
			}
			if c.target != tc.wantTarget || c.insecure != tc.wantInsecure {
				t.Errorf("parseCollector(%q) = %+v", tc.endpoint, c)
			}
		})
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "jobtrackr-auth", false); err == nil {
		t.Error("NewProviders should reject an endpoint without host")
	}
}

func TestMeterProvider_KDFBuckets(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	mp := newMeterProvider(metric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	m, err := telemetry.NewMetrics(mp.Meter(instrumentationName))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordKDF(ctx, "verify_hash", 60*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "vault.kdf.duration" {
				continue
			}
			h, ok := md.Data.(metricdata.Histogram[float64])
			if !ok || len(h.DataPoints) != 1 {
				t.Fatalf("kdf data = %#v", md.Data)
			}
			bounds := h.DataPoints[0].Bounds
			if len(bounds) != len(KDFBuckets) || bounds[0] != KDFBuckets[0] {
				t.Errorf("bounds = %v, want %v", bounds, KDFBuckets)
			}
			return
		}
	}
	t.Fatal("vault.kdf.duration not collected")
}

func TestSetGlobal(t *testing.T) {
	providers, err := NewProviders(context.Background(), "", "jobtrackr-auth", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}

	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	}()

	providers.SetGlobal()
	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() == oldMeterProvider {
		t.Error("MeterProvider should be updated")
	}

	(&Providers{}).SetGlobal()
}
