package otel

import (
	"context"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"jobtrackr/backend/internal/telemetry"
)

// recordEmitter is the subset of otellog.Logger used by the adapter.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter writing security events as log records to provider.
// A nil provider yields an emitter that drops everything.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewEventEmitterWithLogger wraps any record sink.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &eventLogger{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type eventLogger struct {
	logger recordEmitter
	now    func() time.Time
}

func (e *eventLogger) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	e.logger.Emit(ctx, e.record(event))
	return nil
}

func (e *eventLogger) record(event *telemetry.Event) otellog.Record {
	var rec otellog.Record
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = e.now()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(e.now())

	sev := severity(event.EventType)
	rec.SetSeverity(sev)
	rec.SetSeverityText(sev.String())
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	}

	for _, kv := range [...]struct{ key, value string }{
		{"event_type", event.EventType},
		{"source", event.Source},
		{"user_id", event.UserID},
		{"credential_id", event.CredentialID},
		{"reason", event.Reason},
	} {
		if kv.value != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.value))
		}
	}
	return rec
}

// severity: counter regressions are ERROR so they page; other rejections are WARN.
func severity(eventType string) otellog.Severity {
	switch {
	case eventType == telemetry.EventCounterRegression:
		return otellog.SeverityError
	case strings.HasSuffix(eventType, ".rejected"):
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
