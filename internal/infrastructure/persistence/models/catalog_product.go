package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
)

// CatalogProduct is the read model behind product lookups used when adding to cart
type CatalogProduct struct {
	ID          string                 `gorm:"primaryKey;size:64"`
	Name        string                 `gorm:"size:255;not null"`
	Description string                 `gorm:"type:text"`
	Price       decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	ImageURL    string                 `gorm:"size:512"`
	Category    string                 `gorm:"size:100;index"`
	Active      bool                   `gorm:"not null;default:true;index"`
	Variants    []CatalogVariantOption `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name
func (CatalogProduct) TableName() string {
	return "catalog_products"
}

// CatalogVariantOption is one option row of a product variant dimension
type CatalogVariantOption struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	ProductID       string          `gorm:"size:64;not null;index"`
	VariantName     string          `gorm:"size:100;not null"`
	Value           string          `gorm:"size:100;not null"`
	PriceAdjustment decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SortOrder       int             `gorm:"not null;default:0"`
}

// TableName returns the table name
func (CatalogVariantOption) TableName() string {
	return "catalog_variant_options"
}

// ToDomain converts the model to a domain product, grouping option rows by
// variant name in SortOrder.
func (m *CatalogProduct) ToDomain() cart.Product {
	p := cart.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		ImageURL:    m.ImageURL,
		Category:    m.Category,
	}
	index := make(map[string]int)
	for _, opt := range m.Variants {
		i, ok := index[opt.VariantName]
		if !ok {
			i = len(p.Variants)
			index[opt.VariantName] = i
			p.Variants = append(p.Variants, cart.ProductVariant{Name: opt.VariantName})
		}
		p.Variants[i].Options = append(p.Variants[i].Options, cart.VariantOption{
			Value:           opt.Value,
			PriceAdjustment: opt.PriceAdjustment,
		})
	}
	return p
}

// FromDomain populates the model from a domain product
func (m *CatalogProduct) FromDomain(p cart.Product) {
	m.ID = p.ID
	m.Name = p.Name
	m.Description = p.Description
	m.Price = p.Price
	m.ImageURL = p.ImageURL
	m.Category = p.Category
	m.Active = true
	m.Variants = m.Variants[:0]
	order := 0
	for _, v := range p.Variants {
		for _, o := range v.Options {
			m.Variants = append(m.Variants, CatalogVariantOption{
				ProductID:       p.ID,
				VariantName:     v.Name,
				Value:           o.Value,
				PriceAdjustment: o.PriceAdjustment,
				SortOrder:       order,
			})
			order++
		}
	}
}
