package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest cmd/server waits in Drain before shutting the providers down.
const ShutdownDrainDuration = emitTimeout

// pending counts EmitAsync goroutines; idle is closed whenever the count returns to zero.
var pending struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func track() {
	pending.mu.Lock()
	defer pending.mu.Unlock()
	if pending.n == 0 {
		pending.idle = make(chan struct{})
	}
	pending.n++
}

func untrack() {
	pending.mu.Lock()
	defer pending.mu.Unlock()
	pending.n--
	if pending.n == 0 {
		close(pending.idle)
	}
}

// EmitAsync emits event in the background so request handlers never wait on the exporter.
// The emit runs on its own context (emitTimeout) so a finished request does not cancel it.
// Failures are logged with ctx and otherwise dropped. Nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	track()
	go func() {
		defer untrack()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Default().WarnContext(ctx, "telemetry: async emit failed",
				"event_type", event.EventType, "user_id", event.UserID, "error", err)
		}
	}()
}

// Drain blocks until no EmitAsync goroutine is running, or ctx is done.
func Drain(ctx context.Context) error {
	pending.mu.Lock()
	if pending.n == 0 {
		pending.mu.Unlock()
		return nil
	}
	idle := pending.idle
	pending.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
