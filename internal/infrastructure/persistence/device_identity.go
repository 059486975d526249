package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// DefaultDeviceKey is the storage key holding the device identifier
const DefaultDeviceKey = "device-id"

// DeviceIdentity hands out the stable identifier of the browser (origin) that
// owns a storage area. The first caller generates it, later callers read it.
type DeviceIdentity struct {
	area   storage.Area
	key    string
	logger *zap.Logger

	mu       sync.Mutex
	deviceID string
}

// NewDeviceIdentity creates a DeviceIdentity stored under key ("" uses the default)
func NewDeviceIdentity(area storage.Area, key string, logger *zap.Logger) *DeviceIdentity {
	if key == "" {
		key = DefaultDeviceKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceIdentity{area: area, key: key, logger: logger}
}

// DeviceID returns the persisted identifier, creating it on first use. When
// storage is unavailable a process-local identifier is used for the session.
func (d *DeviceIdentity) DeviceID(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deviceID != "" {
		return d.deviceID
	}

	raw, err := d.area.Get(ctx, d.key)
	switch {
	case err == nil && strings.TrimSpace(string(raw)) != "":
		d.deviceID = strings.TrimSpace(string(raw))
		return d.deviceID
	case err != nil && !errors.Is(err, storage.ErrKeyNotFound):
		d.logger.Warn("Failed to read device id", zap.Error(err))
	}

	d.deviceID = uuid.NewString()
	if err := d.area.Set(ctx, d.key, []byte(d.deviceID)); err != nil {
		d.logger.Warn("Failed to persist device id", zap.Error(err))
	}
	return d.deviceID
}
