package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
)

// VariantOptionPayload is a selectable variant value
type VariantOptionPayload struct {
	Value           string          `json:"value" binding:"required,max=100"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// ProductVariantPayload is a variant dimension of a product
type ProductVariantPayload struct {
	Name    string                 `json:"name" binding:"required,max=100"`
	Options []VariantOptionPayload `json:"options" binding:"dive"`
}

// ProductPayload is a product snapshot sent or returned by the API
type ProductPayload struct {
	ID          string                  `json:"id" binding:"required,max=100"`
	Name        string                  `json:"name" binding:"required,max=200"`
	Description string                  `json:"description,omitempty"`
	Price       decimal.Decimal         `json:"price"`
	ImageURL    string                  `json:"image_url,omitempty"`
	Category    string                  `json:"category,omitempty"`
	Variants    []ProductVariantPayload `json:"variants,omitempty" binding:"dive"`
}

// ToDomain converts the payload to a cart product
func (p ProductPayload) ToDomain() cart.Product {
	product := cart.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
	}
	for _, v := range p.Variants {
		variant := cart.ProductVariant{Name: v.Name}
		for _, o := range v.Options {
			variant.Options = append(variant.Options, cart.VariantOption{
				Value:           o.Value,
				PriceAdjustment: o.PriceAdjustment,
			})
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}

// ProductPayloadFrom converts a cart product to its payload
func ProductPayloadFrom(p cart.Product) ProductPayload {
	out := ProductPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
	}
	for _, v := range p.Variants {
		variant := ProductVariantPayload{Name: v.Name, Options: make([]VariantOptionPayload, 0, len(v.Options))}
		for _, o := range v.Options {
			variant.Options = append(variant.Options, VariantOptionPayload{
				Value:           o.Value,
				PriceAdjustment: o.PriceAdjustment,
			})
		}
		out.Variants = append(out.Variants, variant)
	}
	return out
}

// AddItemRequest adds a product to the cart. Either ProductID (looked up in
// the catalog) or a full Product snapshot must be sent.
type AddItemRequest struct {
	ProductID  string            `json:"product_id" binding:"required_without=Product,max=100"`
	Product    *ProductPayload   `json:"product,omitempty"`
	Quantity   int               `json:"quantity" binding:"required,min=1,max=9999"`
	Variants   map[string]string `json:"variants,omitempty"`
	FinalPrice *decimal.Decimal  `json:"final_price,omitempty"`
}

// UpdateQuantityRequest sets an item quantity; 0 or less removes the item
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,max=9999"`
}

// UpdateVariantsRequest changes the variant selection of an item
type UpdateVariantsRequest struct {
	Variants   map[string]string `json:"variants" binding:"required"`
	FinalPrice *decimal.Decimal  `json:"final_price,omitempty"`
}

// CartItemResponse is one row of the cart
type CartItemResponse struct {
	ID               string            `json:"id"`
	Product          ProductPayload    `json:"product"`
	Quantity         int               `json:"quantity"`
	SelectedVariants map[string]string `json:"selected_variants"`
	FinalPrice       decimal.Decimal   `json:"final_price"`
	LineTotal        decimal.Decimal   `json:"line_total"`
	AddedAt          time.Time         `json:"added_at"`
}

// CartResponse is the cart state of a tab
type CartResponse struct {
	TabID       string             `json:"tab_id"`
	Items       []CartItemResponse `json:"items"`
	TotalItems  int                `json:"total_items"`
	TotalPrice  decimal.Decimal    `json:"total_price"`
	LastUpdated *time.Time         `json:"last_updated,omitempty"`
}

// NewCartItemResponses converts cart items for output
func NewCartItemResponses(items []cart.CartItem) []CartItemResponse {
	out := make([]CartItemResponse, 0, len(items))
	for _, item := range items {
		variants := map[string]string(item.SelectedVariants)
		if variants == nil {
			variants = map[string]string{}
		}
		out = append(out, CartItemResponse{
			ID:               item.ID,
			Product:          ProductPayloadFrom(item.Product),
			Quantity:         item.Quantity,
			SelectedVariants: variants,
			FinalPrice:       item.FinalPrice,
			LineTotal:        item.LineTotal(),
			AddedAt:          item.AddedAt,
		})
	}
	return out
}

// NewCartResponse converts a cart state for output
func NewCartResponse(tabID string, st cart.State) CartResponse {
	return CartResponse{
		TabID:       tabID,
		Items:       NewCartItemResponses(st.Items),
		TotalItems:  st.TotalItems,
		TotalPrice:  st.TotalPrice,
		LastUpdated: st.LastUpdated,
	}
}

// AbandonedCartResponse is a snapshot of a cart left without checkout
type AbandonedCartResponse struct {
	TabID       string             `json:"tab_id"`
	DeviceID    string             `json:"device_id"`
	Items       []CartItemResponse `json:"items"`
	TotalItems  int                `json:"total_items"`
	TotalValue  decimal.Decimal    `json:"total_value"`
	AbandonedAt time.Time          `json:"abandoned_at"`
}

// NewAbandonedCartResponse converts an abandoned cart for output
func NewAbandonedCartResponse(a cart.AbandonedCart) AbandonedCartResponse {
	return AbandonedCartResponse{
		TabID:       a.Metadata.TabID,
		DeviceID:    a.Metadata.DeviceID,
		Items:       NewCartItemResponses(a.Items),
		TotalItems:  a.TotalItems,
		TotalValue:  a.TotalValue,
		AbandonedAt: a.AbandonedAt,
	}
}

// RecoveryResponse reports whether a recent abandoned cart can be restored
type RecoveryResponse struct {
	Available bool                   `json:"available"`
	Cart      *AbandonedCartResponse `json:"cart,omitempty"`
}

// CartMetadataResponse describes who last persisted the cart of a tab
type CartMetadataResponse struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	TabID     string    `json:"tab_id"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCartMetadataResponse converts cart metadata for output
func NewCartMetadataResponse(m cart.Metadata) CartMetadataResponse {
	return CartMetadataResponse(m)
}

// CartEvent is the data of a server-sent cart event
type CartEvent struct {
	Kind      string                 `json:"kind"`
	Level     string                 `json:"level,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Cart      *CartResponse          `json:"cart,omitempty"`
	Abandoned *AbandonedCartResponse `json:"abandoned,omitempty"`
	At        time.Time              `json:"at"`
}

// UpsertProductRequest creates or replaces a catalog product
type UpsertProductRequest struct {
	Name        string                  `json:"name" binding:"required,max=200"`
	Description string                  `json:"description" binding:"max=2000"`
	Price       decimal.Decimal         `json:"price"`
	ImageURL    string                  `json:"image_url" binding:"omitempty,url,max=500"`
	Category    string                  `json:"category" binding:"max=100"`
	Variants    []ProductVariantPayload `json:"variants" binding:"dive"`
}

// ToDomain converts the request to a catalog product with the given id
func (r UpsertProductRequest) ToDomain(id string) cart.Product {
	return ProductPayload{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
		Category:    r.Category,
		Variants:    r.Variants,
	}.ToDomain()
}
