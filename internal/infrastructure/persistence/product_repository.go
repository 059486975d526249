package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows a catalog listing
type ProductFilter struct {
	Category string
	OrderBy  string // one of CatalogSortFields, default name
	OrderDir string // ASC or DESC, default ASC
	Limit    int
	Offset   int
}

// GormProductCatalog serves product lookups for the cart from the catalog tables
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new GormProductCatalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// AutoMigrateCatalog creates or updates the catalog tables
func AutoMigrateCatalog(db *gorm.DB) error {
	return db.AutoMigrate(&models.CatalogProduct{}, &models.CatalogVariantOption{})
}

func variantsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC")
}

// FindByID returns an active product by id
func (r *GormProductCatalog) FindByID(ctx context.Context, id string) (cart.Product, error) {
	var model models.CatalogProduct
	if err := r.db.WithContext(ctx).
		Preload("Variants", variantsInOrder).
		Where("id = ? AND active = ?", id, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cart.Product{}, fmt.Errorf("product %q: %w", id, cart.ErrProductNotFound)
		}
		return cart.Product{}, err
	}
	return model.ToDomain(), nil
}

// List returns active products in the requested order, plus the total count
func (r *GormProductCatalog) List(ctx context.Context, filter ProductFilter) ([]cart.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CatalogProduct{}).Where("active = ?", true)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	orderBy := ValidateSortField(filter.OrderBy, CatalogSortFields, "name")
	orderDir := ValidateSortOrder(filter.OrderDir, "ASC")
	query = query.Order(orderBy + " " + orderDir)
	if orderBy != "id" {
		query = query.Order("id ASC")
	}

	var rows []models.CatalogProduct
	if err := query.Preload("Variants", variantsInOrder).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	products := make([]cart.Product, 0, len(rows))
	for i := range rows {
		products = append(products, rows[i].ToDomain())
	}
	return products, total, nil
}

// Save inserts or replaces a product together with its variant options
func (r *GormProductCatalog) Save(ctx context.Context, p cart.Product) error {
	if p.ID == "" {
		return fmt.Errorf("%w: product id is required", cart.ErrInvalidAction)
	}
	var model models.CatalogProduct
	model.FromDomain(p)
	options := model.Variants
	model.Variants = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "price", "image_url", "category", "active", "updated_at"}),
		}).Create(&model).Error; err != nil {
			return fmt.Errorf("failed to save product %q: %w", p.ID, err)
		}
		if err := tx.Where("product_id = ?", p.ID).Delete(&models.CatalogVariantOption{}).Error; err != nil {
			return fmt.Errorf("failed to replace variants of %q: %w", p.ID, err)
		}
		if len(options) == 0 {
			return nil
		}
		return tx.Create(&options).Error
	})
}

// Deactivate hides a product from lookups without deleting it
func (r *GormProductCatalog) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.CatalogProduct{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %q: %w", id, cart.ErrProductNotFound)
	}
	return nil
}

// Seed saves every product in products
func (r *GormProductCatalog) Seed(ctx context.Context, products []cart.Product) error {
	for _, p := range products {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
