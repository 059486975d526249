package cart

import "github.com/shopspring/decimal"

// Action is a cart mutation applied by Reduce. The set of actions is closed:
// only the types declared in this file implement it.
type Action interface {
	actionName() string
}

// AddItem adds Quantity units of Product with the given variant selection.
// FinalPrice overrides the variant-adjusted price when set.
type AddItem struct {
	Product    Product
	Quantity   int
	Variants   Variants
	FinalPrice *decimal.Decimal
}

// RemoveItem removes the row with ItemID. Unknown ids are a no-op.
type RemoveItem struct {
	ItemID string
}

// UpdateQuantity sets the quantity of a row. Quantity <= 0 removes the row.
type UpdateQuantity struct {
	ItemID   string
	Quantity int
}

// UpdateVariants changes the variant selection of a row, which changes its id.
type UpdateVariants struct {
	ItemID     string
	Variants   Variants
	FinalPrice *decimal.Decimal
}

// Clear empties the cart.
type Clear struct{}

// Load replaces the cart contents, e.g. from storage or another tab.
type Load struct {
	Items []CartItem
}

func (AddItem) actionName() string        { return "ADD_ITEM" }
func (RemoveItem) actionName() string     { return "REMOVE_ITEM" }
func (UpdateQuantity) actionName() string { return "UPDATE_QUANTITY" }
func (UpdateVariants) actionName() string { return "UPDATE_VARIANTS" }
func (Clear) actionName() string          { return "CLEAR" }
func (Load) actionName() string           { return "LOAD" }

// ActionName returns the wire name of an action, used in logs and metrics.
func ActionName(a Action) string {
	if a == nil {
		return "UNKNOWN"
	}
	return a.actionName()
}
