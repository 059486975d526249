package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    60 * time.Second,
		ServiceName:       "storefront-test",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("cart"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestMeterProvider_ShutdownWithCancelledContext(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, mp.Shutdown(ctx))
}

// collect returns the metrics gathered by reader, keyed by instrument name
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestCounterAndGauge(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	counter, err := telemetry.NewCounter(meter, "requests_total", "Requests", "{requests}")
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		counter.Inc(ctx, telemetry.AttrHTTPMethod.String("GET"))
	}

	gauge, err := telemetry.NewGauge(meter, "tabs", "Tabs", "{tabs}")
	require.NoError(t, err)
	gauge.Record(ctx, 3)
	gauge.Record(ctx, 2)

	got := collect(t, reader)

	sum, ok := got["requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.EqualValues(t, 6, sum.DataPoints[0].Value)

	g, ok := got["tabs"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	assert.EqualValues(t, 2, g.DataPoints[0].Value)
}

func TestHistogram_CustomBoundaries(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	h, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "storage_write_seconds",
		Description: "Storage write latency",
		Unit:        "s",
		Boundaries:  telemetry.StorageDurationBuckets,
	})
	require.NoError(t, err)
	h.RecordDuration(ctx, 2*time.Millisecond, attribute.String("backend", "memory"))
	h.Record(ctx, 0.2)

	hist, ok := collect(t, reader)["storage_write_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		assert.Equal(t, telemetry.StorageDurationBuckets, dp.Bounds)
	}
	assert.EqualValues(t, 2, count)
}
