package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VariantOption is one selectable value of a product variant, e.g. size "XL".
type VariantOption struct {
	Value           string
	PriceAdjustment decimal.Decimal
}

// ProductVariant describes a variant dimension such as "size" or "color".
type ProductVariant struct {
	Name    string
	Options []VariantOption
}

// Product is the catalog snapshot embedded into a cart item at add time.
// The cart never re-fetches it, so later catalog changes do not alter items
// already in the cart.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Category    string
	Variants    []ProductVariant
}

// Variant returns the variant definition with the given name
func (p Product) Variant(name string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// Option returns the option with the given value
func (v ProductVariant) Option(value string) (VariantOption, bool) {
	for _, o := range v.Options {
		if o.Value == value {
			return o, true
		}
	}
	return VariantOption{}, false
}

// FinalPriceFor returns the product price adjusted by every selected variant option.
func FinalPriceFor(p Product, selected Variants) (decimal.Decimal, error) {
	price := p.Price
	for name, value := range selected {
		variant, ok := p.Variant(name)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: product %s has no variant %q", ErrInvalidAction, p.ID, name)
		}
		option, ok := variant.Option(value)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: variant %q has no option %q", ErrInvalidAction, name, value)
		}
		price = price.Add(option.PriceAdjustment)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: adjusted price for %s is negative", ErrInvalidAction, p.ID)
	}
	return price, nil
}
