package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// CartMetrics records cart activity: dispatched actions, persistence
// outcomes, cross-tab syncs and abandonment recovery.
type CartMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	actionsTotal      *Counter
	saveFailuresTotal *Counter
	syncAppliedTotal  *Counter
	abandonedTotal    *Counter
	abandonedValue    *Histogram
	recoveryTotal     *Counter
	importTotal       *Counter
	activeTabs        *Gauge
	storageDuration   *Histogram
}

// CartMetricsConfig holds configuration for cart metrics.
type CartMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// Recovery outcomes
const (
	RecoveryRestored  = "restored"
	RecoveryDismissed = "dismissed"
	RecoveryFailed    = "failed"
)

// Import outcomes
const (
	ImportAccepted        = "accepted"
	ImportVersionMismatch = "version_mismatch"
	ImportCorrupt         = "corrupt"
)

// Storage call outcomes
const (
	StorageOK    = "ok"
	StorageError = "error"
)

// CartValueBuckets are bucket boundaries for abandoned cart value (currency units).
var CartValueBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// NewCartMetrics creates the cart instruments on cfg.Meter.
func NewCartMetrics(cfg CartMetricsConfig) (*CartMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &CartMetrics{meter: cfg.Meter, logger: logger}

	var err error
	if cm.actionsTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_actions_total", "Cart actions applied by the reducer", "{actions}"); err != nil {
		return nil, err
	}
	if cm.saveFailuresTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_save_failures_total", "Cart writes rejected by storage", "{writes}"); err != nil {
		return nil, err
	}
	if cm.syncAppliedTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_sync_applied_total", "Carts replaced by another tab's write", "{syncs}"); err != nil {
		return nil, err
	}
	if cm.abandonedTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_abandoned_total", "Carts recorded as abandoned", "{carts}"); err != nil {
		return nil, err
	}
	if cm.abandonedValue, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefront_cart_abandoned_value",
		Description: "Value of abandoned carts",
		Unit:        "{currency}",
		Boundaries:  CartValueBuckets,
	}); err != nil {
		return nil, err
	}
	if cm.recoveryTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_recovery_total", "Abandoned cart recovery outcomes", "{recoveries}"); err != nil {
		return nil, err
	}
	if cm.importTotal, err = NewCounter(cfg.Meter,
		"storefront_cart_import_total", "Cart import attempts by outcome", "{imports}"); err != nil {
		return nil, err
	}
	if cm.activeTabs, err = NewGauge(cfg.Meter,
		"storefront_cart_active_tabs", "Tabs with a mounted cart", "{tabs}"); err != nil {
		return nil, err
	}
	if cm.storageDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefront_cart_storage_duration_seconds",
		Description: "Latency of cart storage reads and writes",
		Unit:        "s",
		Boundaries:  StorageDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return cm, nil
}

// RecordAction counts one applied action
func (cm *CartMetrics) RecordAction(ctx context.Context, action string) {
	cm.actionsTotal.Inc(ctx, AttrCartAction.String(action))
}

// RecordSaveFailure counts a rejected cart write
func (cm *CartMetrics) RecordSaveFailure(ctx context.Context) {
	cm.saveFailuresTotal.Inc(ctx)
}

// RecordSyncApplied counts a cart replaced from another tab
func (cm *CartMetrics) RecordSyncApplied(ctx context.Context) {
	cm.syncAppliedTotal.Inc(ctx)
}

// RecordAbandoned counts an abandoned cart and records its value
func (cm *CartMetrics) RecordAbandoned(ctx context.Context, totalItems int, value decimal.Decimal) {
	cm.abandonedTotal.Inc(ctx)
	cm.abandonedValue.Record(ctx, value.InexactFloat64(), AttrCartSize.Int(totalItems))
}

// RecordRecovery counts a recovery outcome
func (cm *CartMetrics) RecordRecovery(ctx context.Context, outcome string) {
	cm.recoveryTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordImport counts an import attempt
func (cm *CartMetrics) RecordImport(ctx context.Context, outcome string) {
	cm.importTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// ObserveStorage records the latency of one storage call
func (cm *CartMetrics) ObserveStorage(ctx context.Context, op string, d time.Duration, err error) {
	outcome := StorageOK
	if err != nil {
		outcome = StorageError
	}
	cm.storageDuration.RecordDuration(ctx, d, AttrStorageOp.String(op), AttrOutcome.String(outcome))
}

// RecordActiveTabs records the number of mounted tabs
func (cm *CartMetrics) RecordActiveTabs(ctx context.Context, n int) {
	cm.activeTabs.Record(ctx, int64(n))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewCartMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
