package telemetry

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordCeremony(ctx, "authentication", "rejected", "counter_regression")
	m.RecordCeremony(ctx, "authentication", "verified", "")
	m.RecordCounterRegression(ctx)
	m.RecordKDF(ctx, "verify_hash", 50*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			if md.Name == "ceremony.outcomes" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("ceremony.outcomes data = %T", md.Data)
				}
				if len(sum.DataPoints) != 2 {
					t.Errorf("ceremony.outcomes data points = %d, want 2", len(sum.DataPoints))
				}
			}
		}
	}
	for _, name := range []string{"ceremony.outcomes", "passkey.counter_regressions", "vault.kdf.duration"} {
		if !found[name] {
			t.Errorf("metric %q not recorded", name)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordCeremony(ctx, "registration", "verified", "")
	m.RecordCounterRegression(ctx)
	m.RecordKDF(ctx, "encryption_key", time.Second)
}
