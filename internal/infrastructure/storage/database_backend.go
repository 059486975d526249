package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseBackend persists an origin's keys in the storage_entries table.
// Change events are delivered to subscribers of this process only.
type DatabaseBackend struct {
	db     *gorm.DB
	origin string
	hub    *ChangeHub
	now    func() time.Time
}

// NewDatabaseBackend creates a backend over db. The table must exist, see
// AutoMigrateStorage.
func NewDatabaseBackend(db *gorm.DB, origin string, logger *zap.Logger) *DatabaseBackend {
	return &DatabaseBackend{
		db:     db,
		origin: origin,
		hub:    NewChangeHub(logger),
		now:    time.Now,
	}
}

// AutoMigrateStorage creates or updates the storage_entries table
func AutoMigrateStorage(db *gorm.DB) error {
	return db.AutoMigrate(&models.StorageEntry{})
}

func (d *DatabaseBackend) Origin() string {
	return d.origin
}

func (d *DatabaseBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var entry models.StorageEntry
	err := d.db.WithContext(ctx).
		Where("origin = ? AND storage_key = ?", d.origin, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return entry.Value, nil
}

func (d *DatabaseBackend) Store(ctx context.Context, key string, value []byte) error {
	entry := models.StorageEntry{
		Origin:    d.origin,
		Key:       key,
		Value:     value,
		UpdatedAt: d.now(),
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "origin"}, {Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (d *DatabaseBackend) Delete(ctx context.Context, key string) error {
	err := d.db.WithContext(ctx).
		Where("origin = ? AND storage_key = ?", d.origin, key).
		Delete(&models.StorageEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (d *DatabaseBackend) Publish(_ context.Context, event ChangeEvent) error {
	d.hub.Broadcast(event)
	return nil
}

func (d *DatabaseBackend) Subscribe(exclude string, buffer int) (*Subscription, error) {
	return d.hub.Subscribe(exclude, buffer)
}

// Close drops all subscriptions; the database handle is owned by the caller
func (d *DatabaseBackend) Close() error {
	d.hub.Close()
	return nil
}

var _ Backend = (*DatabaseBackend)(nil)
