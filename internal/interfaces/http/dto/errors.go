package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a backing service cannot be reached
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
	// ErrCodeNotImplemented is used when an optional feature is not configured
	ErrCodeNotImplemented = "ERR_NOT_IMPLEMENTED"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Cart error codes
const (
	// ErrCodeCartItemNotFound is used when an item id is not in the cart
	ErrCodeCartItemNotFound = "ERR_CART_ITEM_NOT_FOUND"
	// ErrCodeCartEmpty is used when checking out an empty cart
	ErrCodeCartEmpty = "ERR_CART_EMPTY"
	// ErrCodeCartVersionMismatch is used when imported data has another format version
	ErrCodeCartVersionMismatch = "ERR_CART_VERSION_MISMATCH"
	// ErrCodeCartDataCorrupt is used when imported data cannot be parsed
	ErrCodeCartDataCorrupt = "ERR_CART_DATA_CORRUPT"
	// ErrCodeCartStorageUnavailable is used when the cart could not be persisted
	ErrCodeCartStorageUnavailable = "ERR_CART_STORAGE_UNAVAILABLE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodePayloadTooLarge is used when the body exceeds the size limit
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:        http.StatusInternalServerError,
	ErrCodeInternal:       http.StatusInternalServerError,
	ErrCodeUnavailable:    http.StatusServiceUnavailable,
	ErrCodeNotImplemented: http.StatusNotImplemented,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule: http.StatusUnprocessableEntity,

	// Cart errors
	ErrCodeCartItemNotFound:       http.StatusNotFound,
	ErrCodeCartEmpty:              http.StatusUnprocessableEntity,
	ErrCodeCartVersionMismatch:    http.StatusUnprocessableEntity,
	ErrCodeCartDataCorrupt:        http.StatusBadRequest,
	ErrCodeCartStorageUnavailable: http.StatusServiceUnavailable,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to standardized codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"INVALID_INPUT":            ErrCodeInvalidInput,
	"INVALID_STATE":            ErrCodeInvalidState,
	"UNAVAILABLE":              ErrCodeUnavailable,
	"VALIDATION_ERROR":         ErrCodeValidation,
	"BAD_REQUEST":              ErrCodeBadRequest,
	"INTERNAL_ERROR":           ErrCodeInternal,
	"INVALID_CART_ACTION":      ErrCodeInvalidInput,
	"CART_ITEM_NOT_FOUND":      ErrCodeCartItemNotFound,
	"PRODUCT_NOT_FOUND":        ErrCodeNotFound,
	"ABANDONED_CART_NOT_FOUND": ErrCodeNotFound,
	"EXPORT_NOT_FOUND":         ErrCodeNotFound,
	"CART_VERSION_MISMATCH":    ErrCodeCartVersionMismatch,
	"CART_DATA_CORRUPT":        ErrCodeCartDataCorrupt,
	"CART_STORAGE_UNAVAILABLE": ErrCodeCartStorageUnavailable,
	"CART_EMPTY":               ErrCodeCartEmpty,
	"TAB_ALREADY_STARTED":      ErrCodeConflict,
	"ARCHIVE_DISABLED":         ErrCodeNotImplemented,
}

// NormalizeErrorCode converts a legacy error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
