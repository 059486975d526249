package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Abandoned cart defaults
const (
	DefaultAbandonedKey       = "abandoned-carts"
	DefaultMaxAbandoned       = 5
	DefaultAbandonedRetention = 7 * 24 * time.Hour
)

// AbandonedWriterID tags the tracker's writes in change events. It is not a
// valid tab id, so no tab mistakes them for its own.
const AbandonedWriterID = "system:abandoned-carts"


type abandonedCartDTO struct {
	Items       []itemDTO   `json:"items"`
	TotalItems  int         `json:"totalItems"`
	TotalValue  json.Number `json:"totalValue"`
	AbandonedAt string      `json:"abandonedAt"`
	Metadata    struct {
		DeviceID string `json:"deviceId"`
		TabID    string `json:"tabId"`
	} `json:"metadata"`
}

// AbandonedCartTracker keeps a short, bounded list of carts that were cleared
// or closed without checkout, one entry per tab. Every tab of an origin must
// share one tracker: the list lives under a single key.
type AbandonedCartTracker struct {
	area       storage.Area
	key        string
	maxEntries int
	retention  time.Duration
	logger     *zap.Logger
	now        func() time.Time

	// guards the read-modify-write of the shared list
	mu sync.Mutex
}

// AbandonedCartTrackerOption configures an AbandonedCartTracker
type AbandonedCartTrackerOption func(*AbandonedCartTracker)

// WithAbandonedKey overrides the storage key
func WithAbandonedKey(key string) AbandonedCartTrackerOption {
	return func(t *AbandonedCartTracker) {
		if key != "" {
			t.key = key
		}
	}
}

// WithMaxEntries caps the number of retained snapshots
func WithMaxEntries(n int) AbandonedCartTrackerOption {
	return func(t *AbandonedCartTracker) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// WithRetention sets how long snapshots are kept
func WithRetention(d time.Duration) AbandonedCartTrackerOption {
	return func(t *AbandonedCartTracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithTrackerLogger sets the logger
func WithTrackerLogger(logger *zap.Logger) AbandonedCartTrackerOption {
	return func(t *AbandonedCartTracker) {
		t.logger = logger
	}
}

// WithTrackerClock overrides the clock
func WithTrackerClock(now func() time.Time) AbandonedCartTrackerOption {
	return func(t *AbandonedCartTracker) {
		t.now = now
	}
}

// NewAbandonedCartTracker creates a tracker over area
func NewAbandonedCartTracker(area storage.Area, opts ...AbandonedCartTrackerOption) *AbandonedCartTracker {
	t := &AbandonedCartTracker{
		area:       area,
		key:        DefaultAbandonedKey,
		maxEntries: DefaultMaxAbandoned,
		retention:  DefaultAbandonedRetention,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordAbandonment stores a snapshot of items for tabID, replacing any older
// snapshot of the same tab. Empty carts are ignored.
func (t *AbandonedCartTracker) RecordAbandonment(ctx context.Context, items []cart.CartItem, deviceID, tabID string) bool {
	if len(items) == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entries := t.read(ctx, now)

	kept := entries[:0]
	for _, e := range entries {
		if e.Metadata.TabID != tabID {
			kept = append(kept, e)
		}
	}
	entries = append(kept, cart.NewAbandonedCart(items, deviceID, tabID, now))
	sortNewestFirst(entries)
	if len(entries) > t.maxEntries {
		entries = entries[:t.maxEntries]
	}

	if err := t.write(ctx, entries); err != nil {
		t.logger.Warn("Failed to record abandoned cart",
			zap.String("tab_id", tabID),
			zap.Int("items", len(items)),
			zap.Error(err))
		return false
	}
	t.logger.Debug("Abandoned cart recorded",
		zap.String("tab_id", tabID),
		zap.Int("entries", len(entries)))
	return true
}

// List returns the retained snapshots, newest first
func (t *AbandonedCartTracker) List(ctx context.Context) []cart.AbandonedCart {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(ctx, t.now())
}

// Restore returns the items of tabID's snapshot. The snapshot itself is kept;
// call Remove once the restored cart has been saved.
func (t *AbandonedCartTracker) Restore(ctx context.Context, tabID string) ([]cart.CartItem, error) {
	for _, e := range t.List(ctx) {
		if e.Metadata.TabID == tabID {
			return cart.CloneItems(e.Items), nil
		}
	}
	return nil, fmt.Errorf("tab %q: %w", tabID, cart.ErrAbandonedCartNotFound)
}

// Remove deletes tabID's snapshot and reports whether one existed
func (t *AbandonedCartTracker) Remove(ctx context.Context, tabID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.read(ctx, t.now())
	kept := make([]cart.AbandonedCart, 0, len(entries))
	for _, e := range entries {
		if e.Metadata.TabID != tabID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false
	}
	if err := t.write(ctx, kept); err != nil {
		t.logger.Warn("Failed to remove abandoned cart", zap.String("tab_id", tabID), zap.Error(err))
		return false
	}
	return true
}

// MostRecent returns the newest snapshot abandoned within the given window
func (t *AbandonedCartTracker) MostRecent(ctx context.Context, within time.Duration) (cart.AbandonedCart, bool) {
	entries := t.List(ctx)
	if len(entries) == 0 {
		return cart.AbandonedCart{}, false
	}
	newest := entries[0]
	if within > 0 && t.now().Sub(newest.AbandonedAt) > within {
		return cart.AbandonedCart{}, false
	}
	return newest, true
}

// read loads the list, dropping expired and unreadable entries. A payload
// that cannot be parsed at all counts as an empty list.
func (t *AbandonedCartTracker) read(ctx context.Context, now time.Time) []cart.AbandonedCart {
	data, err := t.area.Get(ctx, t.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		t.logger.Error("Failed to read abandoned carts", zap.Error(err))
		return nil
	}

	var dtos []abandonedCartDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		t.logger.Warn("Ignoring unreadable abandoned cart list", zap.Error(err))
		return nil
	}

	entries := make([]cart.AbandonedCart, 0, len(dtos))
	for _, dto := range dtos {
		entry, err := abandonedFromDTO(dto)
		if err != nil {
			t.logger.Warn("Skipping unreadable abandoned cart",
				zap.String("tab_id", dto.Metadata.TabID),
				zap.Error(err))
			continue
		}
		if entry.IsExpired(now, t.retention) {
			continue
		}
		entries = append(entries, entry)
	}
	sortNewestFirst(entries)
	return entries
}

func (t *AbandonedCartTracker) write(ctx context.Context, entries []cart.AbandonedCart) error {
	if len(entries) == 0 {
		return t.area.Remove(ctx, t.key)
	}
	dtos := make([]abandonedCartDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, abandonedToDTO(e))
	}
	data, err := json.Marshal(dtos)
	if err != nil {
		return fmt.Errorf("failed to encode abandoned carts: %w", err)
	}
	return t.area.Set(ctx, t.key, data)
}

func abandonedToDTO(a cart.AbandonedCart) abandonedCartDTO {
	dto := abandonedCartDTO{
		Items:       make([]itemDTO, 0, len(a.Items)),
		TotalItems:  a.TotalItems,
		TotalValue:  json.Number(a.TotalValue.String()),
		AbandonedAt: formatTime(a.AbandonedAt),
	}
	for _, item := range a.Items {
		dto.Items = append(dto.Items, itemToDTO(item))
	}
	dto.Metadata.DeviceID = a.Metadata.DeviceID
	dto.Metadata.TabID = a.Metadata.TabID
	return dto
}

func abandonedFromDTO(dto abandonedCartDTO) (cart.AbandonedCart, error) {
	at, err := parseTime(dto.AbandonedAt)
	if err != nil {
		return cart.AbandonedCart{}, fmt.Errorf("abandonedAt: %w", err)
	}
	items := make([]cart.CartItem, 0, len(dto.Items))
	for i, raw := range dto.Items {
		item, err := itemFromDTO(raw)
		if err != nil {
			return cart.AbandonedCart{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return cart.NewAbandonedCart(items, dto.Metadata.DeviceID, dto.Metadata.TabID, at), nil
}

func sortNewestFirst(entries []cart.AbandonedCart) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AbandonedAt.After(entries[j].AbandonedAt)
	})
}
