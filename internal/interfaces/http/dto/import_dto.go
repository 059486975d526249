package dto

import "time"

// ArchivedExportResponse is a cart export uploaded to object storage
// @Description Shareable link to an archived cart export
type ArchivedExportResponse struct {
	ExportID   string    `json:"export_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	StorageKey string    `json:"storage_key" example:"cart-exports/tab-1/550e8400-e29b-41d4-a716-446655440000.json"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
	Size       int       `json:"size" example:"512"`
}

// ImportCartResponse is the cart after a successful import
// @Description Cart state after importing an exported cart
type ImportCartResponse struct {
	ImportedItems int          `json:"imported_items" example:"3"`
	Cart          CartResponse `json:"cart"`
}
