package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/saludcampo/offlinesync/internal/config"
)

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("https://otel.example.com:4318")
	require.NoError(t, err)
	require.Equal(t, "otel.example.com:4318", host)
	require.False(t, insecure)

	host, insecure, err = parseEndpoint("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestInitNoEndpointUsesNoop(t *testing.T) {
	providers, shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	require.IsType(t, noop.MeterProvider{}, providers.MeterProvider)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitInvalidEndpoint(t *testing.T) {
	_, _, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "://bad"})
	require.Error(t, err)
}

func TestInitWithEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	providers, shutdown, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: srv.URL, ServiceName: "clinic-tablet"})
	require.NoError(t, err)
	require.IsType(t, &sdkmetric.MeterProvider{}, providers.MeterProvider)
	require.NoError(t, shutdown(context.Background()))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestInstrumentsRecordAttempt(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	inst, err := NewInstruments(mp)
	require.NoError(t, err)

	ctx := context.Background()
	inst.RecordAttempt(ctx, "tbl_citas", true, 250*time.Millisecond)
	inst.RecordAttempt(ctx, "tbl_citas", false, 1500*time.Millisecond)
	inst.RecordAttempt(ctx, "tbl_citas", true, 50*time.Millisecond)
	inst.RecordPending(ctx, 3)
	inst.RecordPending(ctx, -1)

	data := collect(t, reader)

	attempts, ok := data["offlinesync.sync.attempts"].(metricdata.Sum[int64])
	require.True(t, ok)
	var success, failure int64
	for _, dp := range attempts.DataPoints {
		v, _ := dp.Attributes.Value(AttrResult)
		switch v.AsString() {
		case ResultSuccess:
			success += dp.Value
		case ResultFailure:
			failure += dp.Value
		}
	}
	require.Equal(t, int64(2), success)
	require.Equal(t, int64(1), failure)

	hist, ok := data["offlinesync.sync.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	var sum float64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	require.Equal(t, uint64(3), count)
	require.InDelta(t, 1800.0, sum, 1e-6)

	pending, ok := data["offlinesync.queue.pending"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, pending.DataPoints, 1)
	require.Equal(t, int64(2), pending.DataPoints[0].Value)
}

func TestInstrumentsNilSafe(t *testing.T) {
	var inst *Instruments
	inst.RecordAttempt(context.Background(), "tbl_citas", true, time.Second)
	inst.RecordPending(context.Background(), 1)
}
