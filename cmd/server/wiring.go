package main

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Storage backends
const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendDatabase = "database"
)

// openBackend opens the storage shared by every tab of the origin and returns
// a function releasing it.
func openBackend(ctx context.Context, cfg *config.Config, db *persistence.Database, log *zap.Logger) (storage.Backend, func()) {
	switch cfg.Storage.Backend {
	case backendRedis:
		backend, err := storage.NewRedisBackend(storage.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Storage.Origin,
			storage.WithRedisChannel(cfg.Storage.RedisChannel),
			storage.WithRedisLogger(log),
		)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
		}
		go func() {
			if err := backend.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Redis change subscription stopped", zap.Error(err))
			}
		}()
		log.Info("Cart storage on Redis", zap.String("addr", cfg.Redis.Addr()))
		return backend, closeWith(backend, log)

	case backendDatabase:
		if cfg.Database.Driver == config.DatabaseDriverSQLite {
			if err := storage.AutoMigrateStorage(db.DB); err != nil {
				log.Fatal("Failed to migrate storage table", zap.Error(err))
			}
		}
		backend := storage.NewDatabaseBackend(db.DB, cfg.Storage.Origin, log)
		log.Info("Cart storage on database", zap.String("driver", cfg.Database.Driver))
		return backend, closeWith(backend, log)

	default:
		if cfg.Storage.Backend != backendMemory {
			log.Warn("Unknown storage backend, falling back to memory", zap.String("backend", cfg.Storage.Backend))
		}
		backend := storage.NewMemoryBackend(cfg.Storage.Origin, log)
		return backend, closeWith(backend, log)
	}
}

func closeWith(c interface{ Close() error }, log *zap.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Error("Error closing cart storage", zap.Error(err))
		}
	}
}

func storageCheck(backend storage.Backend) func(context.Context) error {
	return func(ctx context.Context) error {
		return storage.Probe(ctx, backend)
	}
}

// seedCatalog fills an empty catalog with a few demo products
func seedCatalog(ctx context.Context, catalog *persistence.GormProductCatalog, log *zap.Logger) error {
	_, total, err := catalog.List(ctx, persistence.ProductFilter{Limit: 1})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}
	products := defaultProducts()
	if err := catalog.Seed(ctx, products); err != nil {
		return err
	}
	log.Info("Seeded demo catalog", zap.Int("products", len(products)))
	return nil
}

func defaultProducts() []cart.Product {
	return []cart.Product{
		{
			ID:          "desk-lamp",
			Name:        "Desk Lamp",
			Description: "Adjustable LED desk lamp",
			Price:       decimal.RequireFromString("49.90"),
			Category:    "home",
			Variants: []cart.ProductVariant{{
				Name: "color",
				Options: []cart.VariantOption{
					{Value: "black", PriceAdjustment: decimal.Zero},
					{Value: "brass", PriceAdjustment: decimal.RequireFromString("10.00")},
				},
			}},
		},
		{
			ID:          "tshirt",
			Name:        "T-Shirt",
			Description: "Organic cotton crew neck",
			Price:       decimal.RequireFromString("19.00"),
			Category:    "apparel",
			Variants: []cart.ProductVariant{
				{
					Name: "size",
					Options: []cart.VariantOption{
						{Value: "S", PriceAdjustment: decimal.Zero},
						{Value: "M", PriceAdjustment: decimal.Zero},
						{Value: "L", PriceAdjustment: decimal.Zero},
						{Value: "XL", PriceAdjustment: decimal.RequireFromString("2.50")},
					},
				},
				{
					Name: "color",
					Options: []cart.VariantOption{
						{Value: "white", PriceAdjustment: decimal.Zero},
						{Value: "navy", PriceAdjustment: decimal.Zero},
					},
				},
			},
		},
		{
			ID:          "mug",
			Name:        "Ceramic Mug",
			Description: "350 ml stoneware mug",
			Price:       decimal.RequireFromString("12.50"),
			Category:    "kitchen",
		},
	}
}
