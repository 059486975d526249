package cart

import "github.com/storefront/backend/internal/domain/shared"

// Cart domain errors. Storage-boundary failures are converted to bool/nil results
// by the infrastructure layer; only ErrInvalidAction is expected to reach callers
// from the reducer, and it always indicates a caller contract violation.
var (
	ErrInvalidAction         = shared.NewDomainError("INVALID_CART_ACTION", "Invalid cart action payload")
	ErrItemNotFound          = shared.NewDomainError("CART_ITEM_NOT_FOUND", "Cart item not found")
	ErrProductNotFound       = shared.NewDomainError("PRODUCT_NOT_FOUND", "Product not found")
	ErrVersionMismatch       = shared.NewDomainError("CART_VERSION_MISMATCH", "Cart data was saved by an incompatible version")
	ErrCorruptEnvelope       = shared.NewDomainError("CART_DATA_CORRUPT", "Cart data is malformed")
	ErrAbandonedCartNotFound = shared.NewDomainError("ABANDONED_CART_NOT_FOUND", "Abandoned cart not found")
	ErrStorageUnavailable    = shared.NewDomainError("CART_STORAGE_UNAVAILABLE", "Cart could not be saved")
)
