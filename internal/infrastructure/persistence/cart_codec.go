package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
)

// DefaultCodecVersion is the envelope schema version written by this build
const DefaultCodecVersion = "1.0.0"

// timestampLayout is ISO-8601 with millisecond precision, in UTC
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is a decoded cart envelope
type Envelope struct {
	Items      []cart.CartItem
	ExportedAt time.Time
	Version    string
	TotalItems int
	TotalPrice decimal.Decimal
	Metadata   *cart.Metadata
}

// Wire types keep money as JSON numbers and dates as strings; revival into
// decimal.Decimal and time.Time happens in the *FromDTO helpers.
type envelopeDTO struct {
	Items      []itemDTO    `json:"items"`
	ExportedAt string       `json:"exportedAt"`
	Version    string       `json:"version"`
	TotalItems int          `json:"totalItems"`
	TotalPrice json.Number  `json:"totalPrice"`
	Metadata   *metadataDTO `json:"metadata,omitempty"`
}

type itemDTO struct {
	ID               string            `json:"id"`
	Product          productDTO        `json:"product"`
	Quantity         int               `json:"quantity"`
	SelectedVariants map[string]string `json:"selectedVariants,omitempty"`
	FinalPrice       json.Number       `json:"finalPrice"`
	AddedAt          string            `json:"addedAt"`
}

type productDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Price       json.Number  `json:"price"`
	Image       string       `json:"image,omitempty"`
	Category    string       `json:"category,omitempty"`
	Variants    []variantDTO `json:"variants,omitempty"`
}

type variantDTO struct {
	Name    string      `json:"name"`
	Options []optionDTO `json:"options"`
}

type optionDTO struct {
	Value           string      `json:"value"`
	PriceAdjustment json.Number `json:"priceAdjustment"`
}

type metadataDTO struct {
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId"`
	TabID     string `json:"tabId,omitempty"`
	Version   string `json:"version"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// CartCodec converts cart items to and from the versioned JSON envelope
type CartCodec struct {
	version string
	now     func() time.Time
}

// CartCodecOption configures a CartCodec
type CartCodecOption func(*CartCodec)

// WithCodecClock overrides the exportedAt timestamp source
func WithCodecClock(now func() time.Time) CartCodecOption {
	return func(c *CartCodec) {
		c.now = now
	}
}

// NewCartCodec creates a codec that writes and accepts only version
func NewCartCodec(version string, opts ...CartCodecOption) *CartCodec {
	if version == "" {
		version = DefaultCodecVersion
	}
	c := &CartCodec{version: version, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the envelope version this codec writes and accepts
func (c *CartCodec) Version() string {
	return c.version
}

// Encode returns the export envelope for items
func (c *CartCodec) Encode(items []cart.CartItem) ([]byte, error) {
	return c.EncodeWithMetadata(items, nil)
}

// EncodeWithMetadata returns the envelope with an optional metadata object
func (c *CartCodec) EncodeWithMetadata(items []cart.CartItem, meta *cart.Metadata) ([]byte, error) {
	totalItems, totalPrice := cart.Recompute(items)
	env := envelopeDTO{
		Items:      make([]itemDTO, 0, len(items)),
		ExportedAt: formatTime(c.now()),
		Version:    c.version,
		TotalItems: totalItems,
		TotalPrice: json.Number(totalPrice.String()),
	}
	for _, item := range items {
		env.Items = append(env.Items, itemToDTO(item))
	}
	if meta != nil {
		env.Metadata = &metadataDTO{
			SessionID: meta.SessionID,
			DeviceID:  meta.DeviceID,
			TabID:     meta.TabID,
			Version:   meta.Version,
			CreatedAt: formatTime(meta.CreatedAt),
			UpdatedAt: formatTime(meta.UpdatedAt),
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart envelope: %w", err)
	}
	return data, nil
}

// Decode returns the items of an envelope
func (c *CartCodec) Decode(data []byte) ([]cart.CartItem, error) {
	env, err := c.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.Items, nil
}

// DecodeEnvelope parses and validates an envelope. A version other than the
// codec's own is rejected with cart.ErrVersionMismatch; anything malformed is
// rejected with cart.ErrCorruptEnvelope. The totals in the payload are
// informational and recomputed from items.
func (c *CartCodec) DecodeEnvelope(data []byte) (*Envelope, error) {
	var dto envelopeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", cart.ErrCorruptEnvelope, err)
	}
	if dto.Version == "" {
		return nil, fmt.Errorf("%w: missing version", cart.ErrCorruptEnvelope)
	}
	if dto.Version != c.version {
		return nil, fmt.Errorf("%w: got %q, want %q", cart.ErrVersionMismatch, dto.Version, c.version)
	}

	env := &Envelope{
		Version: dto.Version,
		Items:   make([]cart.CartItem, 0, len(dto.Items)),
	}
	if dto.ExportedAt != "" {
		exportedAt, err := parseTime(dto.ExportedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: exportedAt: %v", cart.ErrCorruptEnvelope, err)
		}
		env.ExportedAt = exportedAt
	}

	for i, raw := range dto.Items {
		item, err := itemFromDTO(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", cart.ErrCorruptEnvelope, i, err)
		}
		env.Items = append(env.Items, item)
	}
	env.TotalItems, env.TotalPrice = cart.Recompute(env.Items)

	if dto.Metadata != nil {
		meta, err := metadataFromDTO(*dto.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", cart.ErrCorruptEnvelope, err)
		}
		env.Metadata = meta
	}
	return env, nil
}

func itemToDTO(item cart.CartItem) itemDTO {
	dto := itemDTO{
		ID:         item.ID,
		Product:    productToDTO(item.Product),
		Quantity:   item.Quantity,
		FinalPrice: json.Number(item.FinalPrice.String()),
		AddedAt:    formatTime(item.AddedAt),
	}
	if len(item.SelectedVariants) > 0 {
		dto.SelectedVariants = map[string]string(item.SelectedVariants.Clone())
	}
	return dto
}

func productToDTO(p cart.Product) productDTO {
	dto := productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       json.Number(p.Price.String()),
		Image:       p.ImageURL,
		Category:    p.Category,
	}
	for _, v := range p.Variants {
		vd := variantDTO{Name: v.Name, Options: make([]optionDTO, 0, len(v.Options))}
		for _, o := range v.Options {
			vd.Options = append(vd.Options, optionDTO{
				Value:           o.Value,
				PriceAdjustment: json.Number(o.PriceAdjustment.String()),
			})
		}
		dto.Variants = append(dto.Variants, vd)
	}
	return dto
}

func itemFromDTO(dto itemDTO) (cart.CartItem, error) {
	if dto.Product.ID == "" {
		return cart.CartItem{}, fmt.Errorf("missing product id")
	}
	if dto.Quantity <= 0 {
		return cart.CartItem{}, fmt.Errorf("quantity must be positive, got %d", dto.Quantity)
	}
	finalPrice, err := parseMoney(dto.FinalPrice)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("finalPrice: %w", err)
	}
	if dto.AddedAt == "" {
		return cart.CartItem{}, fmt.Errorf("missing addedAt")
	}
	addedAt, err := parseTime(dto.AddedAt)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("addedAt: %w", err)
	}
	product, err := productFromDTO(dto.Product)
	if err != nil {
		return cart.CartItem{}, err
	}

	var variants cart.Variants
	if len(dto.SelectedVariants) > 0 {
		variants = cart.Variants(dto.SelectedVariants)
	}
	id := dto.ID
	if id == "" {
		id = cart.ItemID(product.ID, variants)
	}
	return cart.CartItem{
		ID:               id,
		Product:          product,
		Quantity:         dto.Quantity,
		SelectedVariants: variants,
		FinalPrice:       finalPrice,
		AddedAt:          addedAt,
	}, nil
}

func productFromDTO(dto productDTO) (cart.Product, error) {
	price, err := parseMoney(dto.Price)
	if err != nil {
		return cart.Product{}, fmt.Errorf("product price: %w", err)
	}
	p := cart.Product{
		ID:          dto.ID,
		Name:        dto.Name,
		Description: dto.Description,
		Price:       price,
		ImageURL:    dto.Image,
		Category:    dto.Category,
	}
	for _, v := range dto.Variants {
		pv := cart.ProductVariant{Name: v.Name, Options: make([]cart.VariantOption, 0, len(v.Options))}
		for _, o := range v.Options {
			adj := decimal.Zero
			if o.PriceAdjustment != "" {
				adj, err = decimal.NewFromString(o.PriceAdjustment.String())
				if err != nil {
					return cart.Product{}, fmt.Errorf("price adjustment of %s=%s: %w", v.Name, o.Value, err)
				}
			}
			pv.Options = append(pv.Options, cart.VariantOption{Value: o.Value, PriceAdjustment: adj})
		}
		p.Variants = append(p.Variants, pv)
	}
	return p, nil
}

func metadataFromDTO(dto metadataDTO) (*cart.Metadata, error) {
	meta := &cart.Metadata{
		SessionID: dto.SessionID,
		DeviceID:  dto.DeviceID,
		TabID:     dto.TabID,
		Version:   dto.Version,
	}
	var err error
	if dto.CreatedAt != "" {
		if meta.CreatedAt, err = parseTime(dto.CreatedAt); err != nil {
			return nil, fmt.Errorf("createdAt: %w", err)
		}
	}
	if dto.UpdatedAt != "" {
		if meta.UpdatedAt, err = parseTime(dto.UpdatedAt); err != nil {
			return nil, fmt.Errorf("updatedAt: %w", err)
		}
	}
	return meta, nil
}

func parseMoney(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", d)
	}
	return d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
