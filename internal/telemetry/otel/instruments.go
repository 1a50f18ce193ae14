package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments are the service counters. The zero value is not usable; use NewInstruments.
type Instruments struct {
	verificationFailures metric.Int64Counter
	syncTotal            metric.Int64Counter
}

// NewInstruments registers the counters on provider's meter. A nil provider yields no-op counters.
func NewInstruments(provider metric.MeterProvider) (*Instruments, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	vf, err := meter.Int64Counter("auth.verification.failures",
		metric.WithDescription("Rejected bearer tokens by failure kind"))
	if err != nil {
		return nil, err
	}
	st, err := meter.Int64Counter("user.sync.total",
		metric.WithDescription("Sync calls by outcome"))
	if err != nil {
		return nil, err
	}
	return &Instruments{verificationFailures: vf, syncTotal: st}, nil
}

// VerificationFailed counts one rejected token.
func (i *Instruments) VerificationFailed(ctx context.Context, kind string) {
	if i == nil {
		return
	}
	i.verificationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SyncCompleted counts one sync call; outcome is created, existing, recovered or error.
func (i *Instruments) SyncCompleted(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
