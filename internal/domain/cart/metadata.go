package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metadata tags a persisted cart with the writer's identity. TabID lets a tab
// recognise its own writes, UpdatedAt orders competing writes.
type Metadata struct {
	SessionID string
	DeviceID  string
	TabID     string
	Version   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AbandonedCartMetadata identifies where an abandoned cart came from
type AbandonedCartMetadata struct {
	DeviceID string
	TabID    string
}

// AbandonedCart is a snapshot of a cart that was cleared or closed without checkout
type AbandonedCart struct {
	Items       []CartItem
	TotalItems  int
	TotalValue  decimal.Decimal
	AbandonedAt time.Time
	Metadata    AbandonedCartMetadata
}

// NewAbandonedCart snapshots items with totals computed from them
func NewAbandonedCart(items []CartItem, deviceID, tabID string, at time.Time) AbandonedCart {
	snapshot := CloneItems(items)
	totalItems, totalValue := Recompute(snapshot)
	return AbandonedCart{
		Items:       snapshot,
		TotalItems:  totalItems,
		TotalValue:  totalValue,
		AbandonedAt: at,
		Metadata: AbandonedCartMetadata{
			DeviceID: deviceID,
			TabID:    tabID,
		},
	}
}

// IsExpired reports whether the snapshot is older than retention at now
func (a AbandonedCart) IsExpired(now time.Time, retention time.Duration) bool {
	return retention > 0 && now.Sub(a.AbandonedAt) > retention
}

// Snapshot is a persisted cart read back from storage
type Snapshot struct {
	Items    []CartItem
	Metadata *Metadata
}
