package pongotel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/castaneai/pongcoord"
)

const (
	operationKey = attribute.Key("operation")
)

var (
	operationQuery   = operationKey.String("query")
	operationPrepare = operationKey.String("prepare")
)

type backendClient struct {
	inner           pongcoord.BackendClient
	meterProvider   metric.MeterProvider
	exchangeCount   metric.Int64Counter
	exchangeLatency metric.Float64Histogram
}

// NewBackendClient counts backend exchanges and their latency by operation and outcome.
func NewBackendClient(inner pongcoord.BackendClient) (pongcoord.BackendClient, error) {
	meterProvider := otel.GetMeterProvider()
	meter := meterProvider.Meter(scopeName)
	exchangeCount, err := meter.Int64Counter("pong.backend_exchange.count_total")
	if err != nil {
		return nil, err
	}
	exchangeLatency, err := meter.Float64Histogram("pong.backend_exchange_latency_seconds",
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyHistogramBuckets...))
	if err != nil {
		return nil, err
	}
	return &backendClient{
		inner:           inner,
		meterProvider:   meterProvider,
		exchangeCount:   exchangeCount,
		exchangeLatency: exchangeLatency,
	}, nil
}

func (c *backendClient) Query(ctx context.Context, addr pongcoord.BackendAddress) (pongcoord.Phase, error) {
	backendAttr := backendKey.String(addr.String())
	statusAttr := statusOK
	start := time.Now()
	defer func() {
		c.record(ctx, start, operationQuery, backendAttr, statusAttr)
	}()
	phase, err := c.inner.Query(ctx, addr)
	if err != nil {
		statusAttr = errorStatusAttr(err)
		return phase, err
	}
	return phase, nil
}

func (c *backendClient) Prepare(ctx context.Context, addr pongcoord.BackendAddress, secret string) (*pongcoord.ReservationTokens, error) {
	backendAttr := backendKey.String(addr.String())
	statusAttr := statusOK
	start := time.Now()
	defer func() {
		c.record(ctx, start, operationPrepare, backendAttr, statusAttr)
	}()
	tokens, err := c.inner.Prepare(ctx, addr, secret)
	if err != nil {
		statusAttr = errorStatusAttr(err)
		return nil, err
	}
	return tokens, nil
}

func (c *backendClient) record(ctx context.Context, start time.Time, attrs ...attribute.KeyValue) {
	c.exchangeCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.exchangeLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
