// Package models contains the GORM models behind the catalog and the database
// storage backend. Domain types in internal/domain/cart carry no ORM tags;
// models convert with ToDomain and FromDomain.
//
// Tables:
//   - catalog_products, catalog_variant_options: products offered to the cart
//   - storage_entries: origin-scoped key/value rows of the shared storage area
//
// The postgres schema for these tables is versioned under
// internal/infrastructure/migration/sql and must stay in step with the models.
package models
