package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewCartMetrics_NilMeter(t *testing.T) {
	cm, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{Logger: zap.NewNop()})

	require.Error(t, err)
	assert.Nil(t, cm)
	assert.Equal(t, "NewCartMetrics: meter cannot be nil", err.Error())
}

func TestCartMetrics_NoopMeter(t *testing.T) {
	cm, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	cm.RecordAction(ctx, "ADD_ITEM")
	cm.RecordSaveFailure(ctx)
	cm.RecordSyncApplied(ctx)
	cm.RecordAbandoned(ctx, 2, decimal.NewFromInt(100))
	cm.RecordRecovery(ctx, telemetry.RecoveryRestored)
	cm.RecordImport(ctx, telemetry.ImportAccepted)
	cm.RecordActiveTabs(ctx, 1)
	cm.ObserveStorage(ctx, "get", time.Millisecond, nil)
}

func TestCartMetrics_Values(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	cm, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{
		Meter: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("cart"),
	})
	require.NoError(t, err)

	cm.RecordAction(ctx, "ADD_ITEM")
	cm.RecordAction(ctx, "ADD_ITEM")
	cm.RecordAction(ctx, "CLEAR")
	cm.RecordAbandoned(ctx, 2, decimal.NewFromInt(100))
	cm.RecordImport(ctx, telemetry.ImportVersionMismatch)

	got := collect(t, reader)

	actions, ok := got["storefront_cart_actions_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byAction := map[string]int64{}
	for _, dp := range actions.DataPoints {
		v, _ := dp.Attributes.Value(telemetry.AttrCartAction)
		byAction[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"ADD_ITEM": 2, "CLEAR": 1}, byAction)

	value, ok := got["storefront_cart_abandoned_value"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, value.DataPoints, 1)
	assert.Equal(t, 100.0, value.DataPoints[0].Sum)

	imports, ok := got["storefront_cart_import_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, imports.DataPoints, 1)
	outcome, _ := imports.DataPoints[0].Attributes.Value(telemetry.AttrOutcome)
	assert.Equal(t, telemetry.ImportVersionMismatch, outcome.AsString())
}

func TestCartMetrics_StorageDuration(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	cm, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{
		Meter: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("cart"),
	})
	require.NoError(t, err)

	cm.ObserveStorage(ctx, "set", 2*time.Millisecond, nil)
	cm.ObserveStorage(ctx, "set", 3*time.Millisecond, nil)
	cm.ObserveStorage(ctx, "set", time.Second, errors.New("quota"))

	hist, ok := collect(t, reader)["storefront_cart_storage_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	byOutcome := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		assert.Equal(t, telemetry.StorageDurationBuckets, dp.Bounds)
		op, _ := dp.Attributes.Value(telemetry.AttrStorageOp)
		assert.Equal(t, "set", op.AsString())
		outcome, _ := dp.Attributes.Value(telemetry.AttrOutcome)
		byOutcome[outcome.AsString()] = dp.Count
	}
	assert.Equal(t, map[string]uint64{telemetry.StorageOK: 2, telemetry.StorageError: 1}, byOutcome)
}
