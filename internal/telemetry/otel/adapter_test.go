package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"jobtrackr/backend/internal/telemetry"
)

type sink struct {
	records []otellog.Record
}

func (s *sink) Emit(_ context.Context, rec otellog.Record) {
	s.records = append(s.records, rec)
}

func attrs(rec otellog.Record) map[string]string {
	out := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestNewEventEmitter_NilProvider(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), &telemetry.Event{UserID: "u1"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestNewEventEmitter_SDKProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: telemetry.EventRegistrationVerified}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_Records(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name      string
		event     telemetry.Event
		severity  otellog.Severity
		wantAttrs map[string]string
		body      string
	}{
		{
			name: "counter regression",
			event: telemetry.Event{
				UserID: "user-1", CredentialID: "AQID", EventType: telemetry.EventCounterRegression,
				Source: "ceremony", Reason: "counter_regression", CreatedAt: created,
			},
			severity: otellog.SeverityError,
			wantAttrs: map[string]string{
				"user_id": "user-1", "credential_id": "AQID", "event_type": telemetry.EventCounterRegression,
				"source": "ceremony", "reason": "counter_regression",
			},
		},
		{
			name: "rejected ceremony with metadata",
			event: telemetry.Event{
				EventType: telemetry.EventAuthenticationRejected, Source: "ceremony", Reason: "origin_mismatch",
				Metadata: []byte(`{"origin":"https://evil.test"}`), CreatedAt: created,
			},
			severity:  otellog.SeverityWarn,
			wantAttrs: map[string]string{"event_type": telemetry.EventAuthenticationRejected, "source": "ceremony", "reason": "origin_mismatch"},
			body:      `{"origin":"https://evil.test"}`,
		},
		{
			name:      "master password verified",
			event:     telemetry.Event{UserID: "user-2", EventType: telemetry.EventMasterPasswordVerified, Source: "vault", CreatedAt: created},
			severity:  otellog.SeverityInfo,
			wantAttrs: map[string]string{"user_id": "user-2", "event_type": telemetry.EventMasterPasswordVerified, "source": "vault"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &sink{}
			if err := NewEventEmitterWithLogger(s).Emit(context.Background(), &tc.event); err != nil {
				t.Fatalf("Emit: %v", err)
			}
			if len(s.records) != 1 {
				t.Fatalf("records = %d", len(s.records))
			}
			rec := s.records[0]
			if rec.Severity() != tc.severity || rec.SeverityText() != tc.severity.String() {
				t.Errorf("severity = %v %q, want %v", rec.Severity(), rec.SeverityText(), tc.severity)
			}
			if !rec.Timestamp().Equal(created) {
				t.Errorf("timestamp = %v", rec.Timestamp())
			}
			got := attrs(rec)
			if len(got) != len(tc.wantAttrs) {
				t.Errorf("attrs = %v, want %v", got, tc.wantAttrs)
			}
			for k, v := range tc.wantAttrs {
				if got[k] != v {
					t.Errorf("attr %s = %q, want %q", k, got[k], v)
				}
			}
			if tc.body == "" && !rec.Body().Empty() {
				t.Error("body should be empty without metadata")
			}
			if tc.body != "" && string(rec.Body().AsBytes()) != tc.body {
				t.Errorf("body = %q", rec.Body().AsBytes())
			}
		})
	}
}

func TestEmit_StampsMissingTimestamp(t *testing.T) {
	s := &sink{}
	fixed := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	em := NewEventEmitterWithLogger(s).(*eventLogger)
	em.now = func() time.Time { return fixed }
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: telemetry.EventCredentialDeleted}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !s.records[0].Timestamp().Equal(fixed) || !s.records[0].ObservedTimestamp().Equal(fixed) {
		t.Errorf("timestamps = %v / %v, want %v", s.records[0].Timestamp(), s.records[0].ObservedTimestamp(), fixed)
	}
}
