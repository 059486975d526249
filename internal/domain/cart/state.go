package cart

import (
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// State is the authoritative in-memory cart of one tab.
// TotalItems and TotalPrice are derived from Items and are recomputed by every
// mutating action; they are never stored as independent truth.
type State struct {
	Items       []CartItem
	TotalItems  int
	TotalPrice  decimal.Decimal
	LastUpdated *time.Time
}

// NewState returns an empty cart state
func NewState() State {
	return State{
		Items:      make([]CartItem, 0),
		TotalItems: 0,
		TotalPrice: decimal.Zero,
	}
}

// IsEmpty reports whether the cart has no items
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Item returns the item with the given id
func (s State) Item(id string) (CartItem, bool) {
	idx := indexOfItem(s.Items, id)
	if idx < 0 {
		return CartItem{}, false
	}
	return s.Items[idx], true
}

// Recompute returns the derived totals for a list of items
func Recompute(items []CartItem) (int, decimal.Decimal) {
	totalItems := 0
	totalPrice := decimal.Zero
	for _, item := range items {
		totalItems += item.Quantity
		totalPrice = totalPrice.Add(item.LineTotal())
	}
	return totalItems, totalPrice
}

// Fingerprint returns an order-independent hash of an item list. Two lists with
// the same rows (id, quantity, final price) hash equal regardless of row order.
func Fingerprint(items []CartItem) uint64 {
	rows := make([]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.ID+"\x1f"+strconv.Itoa(item.Quantity)+"\x1f"+item.FinalPrice.String())
	}
	sort.Strings(rows)

	d := xxhash.New()
	for _, row := range rows {
		_, _ = d.WriteString(row)
		_, _ = d.WriteString("\x1e")
	}
	return d.Sum64()
}

func withItems(items []CartItem, now time.Time) State {
	totalItems, totalPrice := Recompute(items)
	ts := now
	return State{
		Items:       items,
		TotalItems:  totalItems,
		TotalPrice:  totalPrice,
		LastUpdated: &ts,
	}
}
