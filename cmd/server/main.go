package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/event"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			Storefront Cart API
//	@version		1.0
//	@description	Cart persistence and cross-tab synchronization for the storefront.
//	@description	Every cart request is scoped to the browser tab named by the X-Tab-ID header.

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     1.0,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// Export warnings and errors over OTLP next to the local output
	logProvider, err := telemetry.NewLoggerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.WarnLevel)

	log.Info("Starting Storefront Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("storage", cfg.Storage.Backend),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
		log.Info("Span profiles requested", zap.Bool("active", tracerProvider.SpanProfilesEnabled()))
	}
	cartMetrics, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{
		Meter:  meterProvider.Meter("storefront.cart"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize cart metrics", zap.Error(err))
	}

	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled
	dbTracingCfg.LogFullSQL = cfg.App.Env == "development"
	if cfg.Database.Driver == config.DatabaseDriverPostgres {
		dbTracingCfg.DBSystem = "postgresql"
	}

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel, logger.WithSlowThreshold(dbTracingCfg.SlowQueryThresh))

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	dbTracing := telemetry.NewDBTracingPlugin(dbTracingCfg, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	// Postgres schemas are versioned by cmd/migrate
	if cfg.Database.Driver == config.DatabaseDriverSQLite {
		if err := persistence.AutoMigrateCatalog(db.DB); err != nil {
			log.Fatal("Failed to migrate catalog", zap.Error(err))
		}
	}
	catalog := persistence.NewGormProductCatalog(db.DB)
	if err := seedCatalog(ctx, catalog, log); err != nil {
		log.Fatal("Failed to seed catalog", zap.Error(err))
	}

	backend, closeBackend := openBackend(ctx, cfg, db, log)
	defer closeBackend()

	// Shared cart exports
	var archiver *appcart.ExportArchiver
	if cfg.Archive.Enabled {
		objects, err := storage.NewS3ObjectStorage(&cfg.Archive,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Archive.PresignExpiration),
		)
		if err != nil {
			log.Fatal("Failed to initialize export archive", zap.Error(err))
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare export bucket", zap.Error(err), zap.String("bucket", cfg.Archive.Bucket))
		}
		archiver = appcart.NewExportArchiver(objects, cfg.Archive.KeyPrefix, cfg.Archive.PresignExpiration, log)
		log.Info("Cart export archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	cartLog := logger.Component(log, "cart")
	broker := appcart.NewNoticeBroker(cfg.Storage.WatchBuffer, cartLog)

	// The abandoned list is a single key per origin, so all tabs share one tracker
	tracker := persistence.NewAbandonedCartTracker(
		storage.NewArea(backend, persistence.AbandonedWriterID,
			storage.WithMaxValueBytes(cfg.Storage.MaxValueBytes),
			storage.WithAreaLogger(log),
			storage.WithAreaObserver(cartMetrics),
		),
		persistence.WithAbandonedKey(cfg.Cart.AbandonedKey),
		persistence.WithMaxEntries(cfg.Cart.MaxAbandoned),
		persistence.WithRetention(cfg.Cart.AbandonedRetention),
		persistence.WithTrackerLogger(log),
	)

	// One cart service per tab, all sharing the origin's storage
	tabs := appcart.NewTabRegistry(func(tabID string) (*appcart.Service, error) {
		area := storage.NewArea(backend, tabID,
			storage.WithMaxValueBytes(cfg.Storage.MaxValueBytes),
			storage.WithAreaLogger(log),
			storage.WithAreaObserver(cartMetrics),
		)
		codec := persistence.NewCartCodec(cfg.Cart.CodecVersion)
		return appcart.NewService(appcart.Config{
			TabID:          tabID,
			StaleAfter:     cfg.Cart.StaleAfter,
			RecoveryWindow: cfg.Cart.RecoveryWindow,
		}, appcart.Dependencies{
			Gateway: persistence.NewCartGateway(area, codec,
				persistence.WithCartKey(cfg.Cart.StorageKey),
				persistence.WithGatewayLogger(log),
			),
			Tracker: tracker,
			Codec:   codec,
			Sync: func(local func() []cart.CartItem) appcart.SyncManager {
				return event.NewCartSyncManager(area, codec, local,
					event.WithSyncKey(cfg.Cart.StorageKey),
					event.WithSyncBuffer(cfg.Storage.WatchBuffer),
					event.WithSyncLogger(logger.Component(cartLog, "sync")),
				)
			},
			Devices:  persistence.NewDeviceIdentity(area, cfg.Cart.DeviceKey, log),
			Catalog:  catalog,
			Notifier: broker,
			Metrics:  cartMetrics,
			Archiver: archiver,
			Logger:   cartLog,
		})
	},
		appcart.WithRegistryLogger(cartLog),
		appcart.WithRegistryMetrics(cartMetrics),
		appcart.WithIdleTimeout(cfg.Cart.IdleTabTimeout),
	)
	go tabs.Run(ctx, time.Minute)

	// Initialize HTTP handlers
	cartHandler := handler.NewCartHandler(tabs, handler.WithCartLogger(log))
	eventsHandler := handler.NewCartEventsHandler(tabs, broker,
		handler.WithEventsLogger(log),
		handler.WithEventsHeartbeat(cfg.HTTP.HeartbeatInterval),
	)
	catalogHandler := handler.NewCatalogHandler(catalog)
	systemHandler := handler.NewSystemHandler(
		handler.WithVersion(cfg.App.Name, "1.0.0"),
		handler.WithActiveTabs(tabs.Len),
		handler.WithHealthCheck("database", func(context.Context) error { return db.Ping() }),
		handler.WithHealthCheck("storage", storageCheck(backend)),
	)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = profiler.IsEnabled()
	profilingConfig.StorageBackend = cfg.Storage.Backend

	// Middleware order: request id first so every later layer can log it,
	// recovery before anything that may panic, tracing before span attributes.
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			Enabled:       cfg.Telemetry.Enabled,
		}),
		middleware.Profiling(profilingConfig),
		middleware.CORSWithConfig(corsConfig),
		middleware.SecureWithConfig(middleware.DefaultSecurityConfig()),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	cartMiddleware := []gin.HandlerFunc{middleware.TabID(), middleware.SpanAttributes()}
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
		cartMiddleware = append(cartMiddleware, middleware.RateLimit(limiter))
	}

	router.NewRouter(engine).
		Register(handler.CartRoutes(cartHandler, eventsHandler, cartMiddleware...)).
		Register(handler.CatalogRoutes(catalogHandler)).
		Register(handler.SystemRoutes(systemHandler)).
		RegisterRoot(handler.HealthRoutes(systemHandler)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// SSE streams never finish on their own
	eventsHandler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	tabs.Close(shutdownCtx)
	stop()

	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log exporter", zap.Error(err))
	}
}
