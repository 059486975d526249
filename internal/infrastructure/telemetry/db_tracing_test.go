package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type tracedEntry struct {
	ID    uint
	Value string
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := telemetry.DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "sqlite", cfg.DBSystem)
}

func TestDBTracingPlugin_DisabledIsNoop(t *testing.T) {
	db := openTestDB(t)
	plugin := telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))
	_, registered := db.Config.Plugins["otelgorm"]
	assert.False(t, registered)
}

func TestDBTracingPlugin_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	db := openTestDB(t)
	cfg := telemetry.DefaultDBTracingConfig()
	cfg.Enabled = true
	require.NoError(t, telemetry.NewDBTracingPlugin(cfg, zap.NewNop()).RegisterOtelGorm(db))

	ctx, span := telemetry.StartSpan(context.Background(), "test.db")
	require.NoError(t, db.WithContext(ctx).AutoMigrate(&tracedEntry{}))
	require.NoError(t, db.WithContext(ctx).Create(&tracedEntry{Value: "cart"}).Error)
	span.End()

	ended := recorder.Ended()
	require.Greater(t, len(ended), 1, "expected statement spans besides the parent")
	for _, s := range ended {
		if s.Name() == "test.db" {
			continue
		}
		assert.Equal(t, span.SpanContext().TraceID(), s.SpanContext().TraceID())
	}
}
