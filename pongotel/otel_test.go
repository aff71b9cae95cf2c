package pongotel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/castaneai/pongcoord"
)

var testingBackend = pongcoord.BackendAddress{Host: "127.0.0.1", Port: 5000}

type stubBackendClient struct {
	queryErr error
}

func (c *stubBackendClient) Query(ctx context.Context, addr pongcoord.BackendAddress) (pongcoord.Phase, error) {
	if c.queryErr != nil {
		return pongcoord.PhaseUnknown, c.queryErr
	}
	return pongcoord.PhaseWaiting, nil
}

func (c *stubBackendClient) Prepare(ctx context.Context, addr pongcoord.BackendAddress, secret string) (*pongcoord.ReservationTokens, error) {
	return &pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"}, nil
}

type countingRecorder struct {
	statuses int
	matches  int
}

func (r *countingRecorder) RecordBackendStatus(context.Context, pongcoord.BackendStatus) error {
	r.statuses++
	return nil
}

func (r *countingRecorder) RecordMatch(context.Context, pongcoord.MatchRecord) error {
	r.matches++
	return nil
}

func TestBackendClientMetrics(t *testing.T) {
	reader := setupMeterProvider(t)
	inner := &stubBackendClient{}
	client, err := NewBackendClient(inner)
	require.NoError(t, err)

	phase, err := client.Query(t.Context(), testingBackend)
	require.NoError(t, err)
	require.Equal(t, pongcoord.PhaseWaiting, phase)
	_, err = client.Prepare(t.Context(), testingBackend, "")
	require.NoError(t, err)

	inner.queryErr = pongcoord.NewError(pongcoord.ErrorStatusTransport, errors.New("i/o timeout"))
	_, err = client.Query(t.Context(), testingBackend)
	require.Error(t, err)

	rm := collect(t, reader)
	count := findMetric(t, rm, "pong.backend_exchange.count_total").Data.(metricdata.Sum[int64])
	require.Equal(t, int64(1), sumWith(count, operationQuery, statusOK))
	require.Equal(t, int64(1), sumWith(count, operationQuery, statusKey.String("transport")))
	require.Equal(t, int64(1), sumWith(count, operationPrepare, statusOK))

	latency := findMetric(t, rm, "pong.backend_exchange_latency_seconds").Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range latency.DataPoints {
		total += dp.Count
	}
	require.Equal(t, uint64(3), total)
}

func TestRecorderMetrics(t *testing.T) {
	reader := setupMeterProvider(t)
	inner := &countingRecorder{}
	recorder, err := NewRecorder(inner)
	require.NoError(t, err)

	require.NoError(t, recorder.RecordBackendStatus(t.Context(), pongcoord.BackendStatus{
		Address:             testingBackend,
		Phase:               pongcoord.PhaseStarted,
		ConsecutiveFailures: 3,
	}))
	require.NoError(t, recorder.RecordMatch(t.Context(), pongcoord.MatchRecord{MatchID: "m1", Address: testingBackend}))
	require.NoError(t, recorder.RecordMatch(t.Context(), pongcoord.MatchRecord{MatchID: "m2", Address: testingBackend}))
	require.Equal(t, 1, inner.statuses)
	require.Equal(t, 2, inner.matches)

	rm := collect(t, reader)
	matches := findMetric(t, rm, "pong.match_dispatched.count_total").Data.(metricdata.Sum[int64])
	require.Equal(t, int64(2), sumWith(matches, backendKey.String(testingBackend.String())))
	phase := findMetric(t, rm, "pong.backend.phase").Data.(metricdata.Gauge[int64])
	require.Len(t, phase.DataPoints, 1)
	require.Equal(t, int64(pongcoord.PhaseStarted), phase.DataPoints[0].Value)
	failures := findMetric(t, rm, "pong.backend.consecutive_failures").Data.(metricdata.Gauge[int64])
	require.Equal(t, int64(3), failures.DataPoints[0].Value)
}

func TestErrorStatusAttr(t *testing.T) {
	require.Equal(t, statusKey.String("decode"), errorStatusAttr(pongcoord.NewError(pongcoord.ErrorStatusDecode, errors.New("bad"))))
	require.Equal(t, statusKey.String("unknown"), errorStatusAttr(errors.New("plain")))
}

func setupMeterProvider(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	return rm
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricdata.Metrics{}
}

func sumWith(sum metricdata.Sum[int64], attrs ...attribute.KeyValue) int64 {
	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for _, attr := range attrs {
			v, ok := dp.Attributes.Value(attr.Key)
			if !ok || v.Emit() != attr.Value.Emit() {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}
