// Package producer defines the interface for publishing identity events to a broker (Kafka).
package producer

import (
	"context"

	"identity-sync/internal/telemetry"
)

// Producer publishes events. Callers use it best-effort: log and ignore errors.
// It satisfies telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call through telemetry.EmitAsync from handlers.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
