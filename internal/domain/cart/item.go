package cart

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Variants maps a variant name to the chosen value
type Variants map[string]string

// Key returns the canonical "name:value" entries sorted by name and joined by "|".
func (v Variants) Key() string {
	if len(v) == 0 {
		return ""
	}
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, 0, len(names))
	for _, name := range names {
		entries = append(entries, name+":"+v[name])
	}
	return strings.Join(entries, "|")
}

// Clone returns a copy of the variant selection, nil when empty
func (v Variants) Clone() Variants {
	if len(v) == 0 {
		return nil
	}
	out := make(Variants, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ItemID computes the identity of a cart row. Two adds of the same product and
// variant combination share an id; different selections stay distinct rows.
// A product without variants gets a trailing "-".
func ItemID(productID string, variants Variants) string {
	return productID + "-" + variants.Key()
}

// CartItem is a single row in the cart
type CartItem struct {
	ID               string
	Product          Product
	Quantity         int
	SelectedVariants Variants
	FinalPrice       decimal.Decimal
	AddedAt          time.Time
}

// LineTotal returns FinalPrice * Quantity
func (i CartItem) LineTotal() decimal.Decimal {
	return i.FinalPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone returns a deep copy of the item
func (i CartItem) Clone() CartItem {
	out := i
	out.SelectedVariants = i.SelectedVariants.Clone()
	if len(i.Product.Variants) > 0 {
		variants := make([]ProductVariant, len(i.Product.Variants))
		for idx, v := range i.Product.Variants {
			variants[idx] = ProductVariant{
				Name:    v.Name,
				Options: append([]VariantOption(nil), v.Options...),
			}
		}
		out.Product.Variants = variants
	}
	return out
}

// CloneItems deep-copies a list of items
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	for idx, item := range items {
		out[idx] = item.Clone()
	}
	return out
}

func indexOfItem(items []CartItem, id string) int {
	for idx, item := range items {
		if item.ID == id {
			return idx
		}
	}
	return -1
}
