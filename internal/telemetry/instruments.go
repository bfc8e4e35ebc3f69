package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
)

// Attribute keys attached to sync measurements.
const (
	AttrCollection = attribute.Key("collection")
	AttrResult     = attribute.Key("result")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const meterName = "github.com/saludcampo/offlinesync/sync"

// Instruments records synchronization measurements. A nil *Instruments is
// valid and records nothing.
type Instruments struct {
	attempts apimetric.Int64Counter
	duration apimetric.Float64Histogram
	pending  apimetric.Int64UpDownCounter
}

// NewInstruments creates the instruments on mp, or on the global provider
// when mp is nil.
func NewInstruments(mp apimetric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	attempts, err := meter.Int64Counter("offlinesync.sync.attempts",
		apimetric.WithDescription("Synchronization attempts by collection and result"),
		apimetric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("offlinesync.sync.duration",
		apimetric.WithDescription("Duration of remote writes made while draining the queue"),
		apimetric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64UpDownCounter("offlinesync.queue.pending",
		apimetric.WithDescription("Writes waiting in the durable queue"),
		apimetric.WithUnit("{write}"))
	if err != nil {
		return nil, err
	}
	return &Instruments{attempts: attempts, duration: duration, pending: pending}, nil
}

// RecordAttempt records one synchronization attempt.
func (i *Instruments) RecordAttempt(ctx context.Context, collection string, success bool, d time.Duration) {
	if i == nil {
		return
	}
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	attrs := apimetric.WithAttributes(AttrCollection.String(collection), AttrResult.String(result))
	i.attempts.Add(ctx, 1, attrs)
	i.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// RecordPending adjusts the pending-writes gauge by delta.
func (i *Instruments) RecordPending(ctx context.Context, delta int64) {
	if i == nil || delta == 0 {
		return
	}
	i.pending.Add(ctx, delta)
}
