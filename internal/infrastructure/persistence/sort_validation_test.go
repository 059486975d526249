package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns default", "", "ASC"},
		{"ASC uppercase returns ASC", "ASC", "ASC"},
		{"desc lowercase returns DESC", "desc", "DESC"},
		{"padded value is trimmed", "  Desc ", "DESC"},
		{"invalid value returns default", "INVALID", "ASC"},
		{"sql injection attempt returns default", "ASC; DROP TABLE catalog_products;--", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input, "ASC"))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty uses default", "", "name"},
		{"whitelisted field", "price", "price"},
		{"whitespace is trimmed", " category ", "category"},
		{"unknown field uses default", "cost_price", "name"},
		{"case sensitive", "Price", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, CatalogSortFields, "name"))
		})
	}
}

func TestSQLInjectionPrevention(t *testing.T) {
	injectionPayloads := []string{
		"id; DROP TABLE catalog_products;--",
		"id' OR '1'='1",
		"id UNION SELECT * FROM storage_entries",
		"name, (SELECT value FROM storage_entries)",
		"CASE WHEN 1=1 THEN id ELSE name END",
		"id\n; DROP TABLE catalog_products",
	}

	for _, payload := range injectionPayloads {
		t.Run(payload, func(t *testing.T) {
			assert.Equal(t, "name", ValidateSortField(payload, CatalogSortFields, "name"))
		})
	}
}
