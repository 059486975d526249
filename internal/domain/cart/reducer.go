package cart

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reduce applies an action to a state and returns the next state.
// The input state is never modified. Every mutating action recomputes the totals
// from the resulting items. An error is returned only for malformed payloads.
func Reduce(state State, action Action, now time.Time) (State, error) {
	switch a := action.(type) {
	case AddItem:
		return reduceAdd(state, a, now)
	case RemoveItem:
		return reduceRemove(state, a, now), nil
	case UpdateQuantity:
		if a.Quantity <= 0 {
			return reduceRemove(state, RemoveItem{ItemID: a.ItemID}, now), nil
		}
		return reduceQuantity(state, a, now), nil
	case UpdateVariants:
		return reduceVariants(state, a, now)
	case Clear:
		next := NewState()
		ts := now
		next.LastUpdated = &ts
		return next, nil
	case Load:
		items, err := sanitizeItems(a.Items)
		if err != nil {
			return state, err
		}
		return withItems(items, now), nil
	case nil:
		return state, fmt.Errorf("%w: nil action", ErrInvalidAction)
	default:
		return state, fmt.Errorf("%w: unsupported action %T", ErrInvalidAction, action)
	}
}

func reduceAdd(state State, a AddItem, now time.Time) (State, error) {
	if a.Product.ID == "" {
		return state, fmt.Errorf("%w: product id is required", ErrInvalidAction)
	}
	if a.Quantity <= 0 {
		return state, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidAction, a.Quantity)
	}
	price, err := resolvePrice(a.Product, a.Variants, a.FinalPrice)
	if err != nil {
		return state, err
	}

	id := ItemID(a.Product.ID, a.Variants)
	items := CloneItems(state.Items)
	if idx := indexOfItem(items, id); idx >= 0 {
		items[idx].Quantity += a.Quantity
		items[idx].FinalPrice = price
		items[idx].AddedAt = now
		return withItems(items, now), nil
	}

	item := CartItem{
		ID:               id,
		Product:          a.Product,
		Quantity:         a.Quantity,
		SelectedVariants: a.Variants,
		FinalPrice:       price,
		AddedAt:          now,
	}
	items = append(items, item.Clone())
	return withItems(items, now), nil
}

func reduceRemove(state State, a RemoveItem, now time.Time) State {
	idx := indexOfItem(state.Items, a.ItemID)
	if idx < 0 {
		return state
	}
	items := make([]CartItem, 0, len(state.Items)-1)
	for i, item := range state.Items {
		if i != idx {
			items = append(items, item.Clone())
		}
	}
	return withItems(items, now)
}

func reduceQuantity(state State, a UpdateQuantity, now time.Time) State {
	idx := indexOfItem(state.Items, a.ItemID)
	if idx < 0 {
		return state
	}
	items := CloneItems(state.Items)
	items[idx].Quantity = a.Quantity
	return withItems(items, now)
}

func reduceVariants(state State, a UpdateVariants, now time.Time) (State, error) {
	idx := indexOfItem(state.Items, a.ItemID)
	if idx < 0 {
		return state, nil
	}
	current := state.Items[idx]
	price, err := resolvePrice(current.Product, a.Variants, a.FinalPrice)
	if err != nil {
		return state, err
	}

	newID := ItemID(current.Product.ID, a.Variants)
	items := CloneItems(state.Items)
	items[idx].ID = newID
	items[idx].SelectedVariants = a.Variants.Clone()
	items[idx].FinalPrice = price

	// A selection that matches another row folds that row into this one.
	if other := indexOfItem(items[idx+1:], newID); other >= 0 {
		other += idx + 1
		items[idx].Quantity += items[other].Quantity
		items = append(items[:other], items[other+1:]...)
	} else if other := indexOfItem(items[:idx], newID); other >= 0 {
		items[idx].Quantity += items[other].Quantity
		items = append(items[:other], items[other+1:]...)
	}
	return withItems(items, now), nil
}

func resolvePrice(p Product, variants Variants, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit == nil {
		return FinalPriceFor(p, variants)
	}
	if explicit.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: final price must not be negative", ErrInvalidAction)
	}
	return *explicit, nil
}

// sanitizeItems prepares externally sourced items for LOAD. Rows with a
// non-positive quantity are dropped and duplicate ids are merged so the
// quantity floor and id uniqueness hold after any load.
func sanitizeItems(in []CartItem) ([]CartItem, error) {
	items := make([]CartItem, 0, len(in))
	for _, raw := range in {
		if raw.Quantity <= 0 {
			continue
		}
		if raw.FinalPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %s has a negative price", ErrInvalidAction, raw.ID)
		}
		item := raw.Clone()
		if item.ID == "" {
			if item.Product.ID == "" {
				return nil, fmt.Errorf("%w: item without id or product id", ErrInvalidAction)
			}
			item.ID = ItemID(item.Product.ID, item.SelectedVariants)
		}
		if idx := indexOfItem(items, item.ID); idx >= 0 {
			items[idx].Quantity += item.Quantity
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
