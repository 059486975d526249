package models

import "time"

// StorageEntry is one key of an origin-scoped storage area
type StorageEntry struct {
	Origin    string    `gorm:"primaryKey;size:255"`
	Key       string    `gorm:"column:storage_key;primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name
func (StorageEntry) TableName() string {
	return "storage_entries"
}
