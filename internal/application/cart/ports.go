package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
)

// Gateway persists the live cart of the storage area a tab writes to.
// Save reports failure instead of returning it so callers can warn and carry on.
type Gateway interface {
	Save(ctx context.Context, items []cart.CartItem, meta *cart.Metadata) bool
	Load(ctx context.Context) *cart.Snapshot
	Clear(ctx context.Context)
	Key() string
}

// Tracker keeps the capped list of abandoned cart snapshots
type Tracker interface {
	RecordAbandonment(ctx context.Context, items []cart.CartItem, deviceID, tabID string) bool
	List(ctx context.Context) []cart.AbandonedCart
	Restore(ctx context.Context, tabID string) ([]cart.CartItem, error)
	Remove(ctx context.Context, tabID string) bool
	MostRecent(ctx context.Context, within time.Duration) (cart.AbandonedCart, bool)
}

// Codec converts item lists to and from the versioned export envelope
type Codec interface {
	Version() string
	Encode(items []cart.CartItem) ([]byte, error)
	Decode(data []byte) ([]cart.CartItem, error)
}

// SyncManager reports cart writes made by other tabs
type SyncManager interface {
	Start(ctx context.Context, callback func(items []cart.CartItem)) error
	Stop()
	IsListening() bool
}

// SyncFactory builds the tab's SyncManager. localItems reports the tab's
// current items and is safe to call from any goroutine.
type SyncFactory func(localItems func() []cart.CartItem) SyncManager

// DeviceIdentity returns the stable identifier of the browser a tab belongs to
type DeviceIdentity interface {
	DeviceID(ctx context.Context) string
}

// Catalog looks up products to snapshot into new cart items
type Catalog interface {
	FindByID(ctx context.Context, id string) (cart.Product, error)
}

// Notifier delivers notices to the UI of a tab
type Notifier interface {
	Notify(tabID string, notice Notice)
}

// Metrics records cart activity
type Metrics interface {
	RecordAction(ctx context.Context, action string)
	RecordSaveFailure(ctx context.Context)
	RecordSyncApplied(ctx context.Context)
	RecordAbandoned(ctx context.Context, totalItems int, value decimal.Decimal)
	RecordRecovery(ctx context.Context, outcome string)
	RecordImport(ctx context.Context, outcome string)
	RecordActiveTabs(ctx context.Context, n int)
}

// ObjectStorage stores exported carts that are shared by link
type ObjectStorage interface {
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
	DeleteObject(ctx context.Context, storageKey string) error
}

// Metric outcome labels
const (
	OutcomeRestored        = "restored"
	OutcomeDismissed       = "dismissed"
	OutcomeFailed          = "failed"
	OutcomeAccepted        = "accepted"
	OutcomeVersionMismatch = "version_mismatch"
	OutcomeCorrupt         = "corrupt"
)

type nopNotifier struct{}

func (nopNotifier) Notify(string, Notice) {}

type nopMetrics struct{}

func (nopMetrics) RecordAction(context.Context, string)                  {}
func (nopMetrics) RecordSaveFailure(context.Context)                     {}
func (nopMetrics) RecordSyncApplied(context.Context)                     {}
func (nopMetrics) RecordAbandoned(context.Context, int, decimal.Decimal) {}
func (nopMetrics) RecordRecovery(context.Context, string)                {}
func (nopMetrics) RecordImport(context.Context, string)                  {}
func (nopMetrics) RecordActiveTabs(context.Context, int)                 {}

type nopSync struct{}

func (nopSync) Start(context.Context, func([]cart.CartItem)) error { return nil }
func (nopSync) Stop()                                              {}
func (nopSync) IsListening() bool                                  { return false }

type staticDevice string

func (d staticDevice) DeviceID(context.Context) string { return string(d) }
