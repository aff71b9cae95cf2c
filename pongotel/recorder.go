package pongotel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/castaneai/pongcoord"
)

type recorder struct {
	inner               pongcoord.Recorder
	meterProvider       metric.MeterProvider
	matchCount          metric.Int64Counter
	backendPhase        metric.Int64Gauge
	consecutiveFailures metric.Int64Gauge
}

// NewRecorder exports backend phases and dispatched matches as metrics before handing them to inner.
func NewRecorder(inner pongcoord.Recorder) (pongcoord.Recorder, error) {
	if inner == nil {
		inner = pongcoord.NopRecorder{}
	}
	meterProvider := otel.GetMeterProvider()
	meter := meterProvider.Meter(scopeName)
	matchCount, err := meter.Int64Counter("pong.match_dispatched.count_total")
	if err != nil {
		return nil, err
	}
	backendPhase, err := meter.Int64Gauge("pong.backend.phase")
	if err != nil {
		return nil, err
	}
	consecutiveFailures, err := meter.Int64Gauge("pong.backend.consecutive_failures")
	if err != nil {
		return nil, err
	}
	return &recorder{
		inner:               inner,
		meterProvider:       meterProvider,
		matchCount:          matchCount,
		backendPhase:        backendPhase,
		consecutiveFailures: consecutiveFailures,
	}, nil
}

func (r *recorder) RecordBackendStatus(ctx context.Context, status pongcoord.BackendStatus) error {
	backendAttr := backendKey.String(status.Address.String())
	r.backendPhase.Record(ctx, int64(status.Phase), metric.WithAttributes(backendAttr))
	r.consecutiveFailures.Record(ctx, int64(status.ConsecutiveFailures), metric.WithAttributes(backendAttr))
	return r.inner.RecordBackendStatus(ctx, status)
}

func (r *recorder) RecordMatch(ctx context.Context, record pongcoord.MatchRecord) error {
	r.matchCount.Add(ctx, 1, metric.WithAttributes(backendKey.String(record.Address.String())))
	return r.inner.RecordMatch(ctx, record)
}
