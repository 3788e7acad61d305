package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTel instruments for ceremony outcomes and vault KDF cost.
// A nil *Metrics records nothing.
type Metrics struct {
	outcomes           metric.Int64Counter
	counterRegressions metric.Int64Counter
	kdfDuration        metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	outcomes, err := meter.Int64Counter("ceremony.outcomes",
		metric.WithDescription("WebAuthn ceremony results by ceremony, outcome and reason"))
	if err != nil {
		return nil, err
	}
	regressions, err := meter.Int64Counter("passkey.counter_regressions",
		metric.WithDescription("Authentications rejected because the signature counter did not increase"))
	if err != nil {
		return nil, err
	}
	kdf, err := meter.Float64Histogram("vault.kdf.duration",
		metric.WithDescription("PBKDF2 computation time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{outcomes: outcomes, counterRegressions: regressions, kdfDuration: kdf}, nil
}

// RecordCeremony counts one finished ceremony. reason is empty for verified ceremonies.
func (m *Metrics) RecordCeremony(ctx context.Context, ceremony, outcome, reason string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ceremony", ceremony),
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

// RecordCounterRegression counts a suspected cloned authenticator.
func (m *Metrics) RecordCounterRegression(ctx context.Context) {
	if m == nil {
		return
	}
	m.counterRegressions.Add(ctx, 1)
}

// RecordKDF records the duration of one key-derivation call for op (verify_hash, encryption_key).
func (m *Metrics) RecordKDF(ctx context.Context, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.kdfDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}
