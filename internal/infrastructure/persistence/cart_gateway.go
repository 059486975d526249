package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// DefaultCartKey is the storage key of the live cart
const DefaultCartKey = "cart"

// CartGateway reads and writes the live cart of one tab's storage area.
// Failures never propagate: Save reports false and Load reports nothing.
type CartGateway struct {
	area   storage.Area
	codec  *CartCodec
	key    string
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastSaved *cart.Metadata
}

// CartGatewayOption configures a CartGateway
type CartGatewayOption func(*CartGateway)

// WithCartKey overrides the storage key
func WithCartKey(key string) CartGatewayOption {
	return func(g *CartGateway) {
		if key != "" {
			g.key = key
		}
	}
}

// WithGatewayLogger sets the logger
func WithGatewayLogger(logger *zap.Logger) CartGatewayOption {
	return func(g *CartGateway) {
		g.logger = logger
	}
}

// WithGatewayClock overrides the UpdatedAt timestamp source
func WithGatewayClock(now func() time.Time) CartGatewayOption {
	return func(g *CartGateway) {
		g.now = now
	}
}

// NewCartGateway creates a gateway over area
func NewCartGateway(area storage.Area, codec *CartCodec, opts ...CartGatewayOption) *CartGateway {
	g := &CartGateway{
		area:   area,
		codec:  codec,
		key:    DefaultCartKey,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the storage key of the live cart
func (g *CartGateway) Key() string {
	return g.key
}

// Save writes items with meta. On success meta.UpdatedAt is stamped with the
// write time; on failure meta is left untouched and false is returned.
func (g *CartGateway) Save(ctx context.Context, items []cart.CartItem, meta *cart.Metadata) bool {
	var stamped *cart.Metadata
	if meta != nil {
		m := *meta
		m.UpdatedAt = g.now()
		stamped = &m
	}

	data, err := g.codec.EncodeWithMetadata(items, stamped)
	if err != nil {
		g.logger.Error("Failed to encode cart", zap.Error(err))
		return false
	}
	if err := g.area.Set(ctx, g.key, data); err != nil {
		fields := []zap.Field{
			zap.String("key", g.key),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		}
		if errors.Is(err, storage.ErrQuotaExceeded) {
			g.logger.Warn("Cart storage quota exceeded", fields...)
		} else {
			g.logger.Error("Failed to save cart", fields...)
		}
		return false
	}

	if stamped != nil {
		*meta = *stamped
		g.mu.Lock()
		saved := *stamped
		g.lastSaved = &saved
		g.mu.Unlock()
	}
	return true
}

// LastSavedMetadata returns the metadata of the last successful Save, or nil
func (g *CartGateway) LastSavedMetadata() *cart.Metadata {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastSaved == nil {
		return nil
	}
	m := *g.lastSaved
	return &m
}

// Load returns the persisted cart, or nil when there is none. A corrupt or
// version-incompatible entry is removed so later loads start clean.
func (g *CartGateway) Load(ctx context.Context) *cart.Snapshot {
	data, err := g.area.Get(ctx, g.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		g.logger.Error("Failed to read cart", zap.String("key", g.key), zap.Error(err))
		return nil
	}

	env, err := g.codec.DecodeEnvelope(data)
	if err != nil {
		g.logger.Warn("Discarding unreadable cart",
			zap.String("key", g.key),
			zap.Error(err))
		if rmErr := g.area.Remove(ctx, g.key); rmErr != nil {
			g.logger.Error("Failed to remove unreadable cart", zap.Error(rmErr))
		}
		return nil
	}
	return &cart.Snapshot{Items: env.Items, Metadata: env.Metadata}
}

// Clear removes the persisted cart. Removing an absent cart is not an error.
func (g *CartGateway) Clear(ctx context.Context) {
	if err := g.area.Remove(ctx, g.key); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		g.logger.Error("Failed to clear cart", zap.String("key", g.key), zap.Error(err))
	}
}
