package cart

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrExportNotFound is returned when an archived export does not exist
var ErrExportNotFound = shared.NewDomainError("EXPORT_NOT_FOUND", "Archived cart export not found")

const exportContentType = "application/json"

// ArchivedExport is an uploaded cart export and its presigned download link
type ArchivedExport struct {
	ExportID   string
	StorageKey string
	URL        string
	ExpiresAt  time.Time
	Size       int
}

// ExportArchiver uploads cart exports to object storage so they can be shared
// as links and imported elsewhere.
type ExportArchiver struct {
	storage ObjectStorage
	prefix  string
	expiry  time.Duration
	logger  *zap.Logger
}

// NewExportArchiver creates an archiver writing under prefix
func NewExportArchiver(storage ObjectStorage, prefix string, expiry time.Duration, logger *zap.Logger) *ExportArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportArchiver{
		storage: storage,
		prefix:  strings.Trim(prefix, "/"),
		expiry:  expiry,
		logger:  logger,
	}
}

// StorageKey returns the object key of exportID archived by tabID
func (a *ExportArchiver) StorageKey(tabID, exportID string) string {
	return path.Join(a.prefix, tabID, exportID+".json")
}

// Archive uploads data and presigns a download link for it
func (a *ExportArchiver) Archive(ctx context.Context, tabID string, data []byte) (*ArchivedExport, error) {
	exportID := uuid.NewString()
	key := a.StorageKey(tabID, exportID)

	if err := a.storage.Upload(ctx, key, data, exportContentType); err != nil {
		return nil, fmt.Errorf("failed to archive cart export: %w", err)
	}
	url, expiresAt, err := a.storage.GenerateDownloadURL(ctx, key, a.expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign cart export link: %w", err)
	}

	a.logger.Info("Cart export archived",
		zap.String("tab_id", tabID),
		zap.String("storage_key", key),
		zap.Int("bytes", len(data)))

	return &ArchivedExport{
		ExportID:   exportID,
		StorageKey: key,
		URL:        url,
		ExpiresAt:  expiresAt,
		Size:       len(data),
	}, nil
}

// Delete removes an export archived by tabID
func (a *ExportArchiver) Delete(ctx context.Context, tabID, exportID string) error {
	if _, err := uuid.Parse(exportID); err != nil {
		return ErrExportNotFound
	}
	key := a.StorageKey(tabID, exportID)

	exists, err := a.storage.ObjectExists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to look up cart export: %w", err)
	}
	if !exists {
		return ErrExportNotFound
	}
	if err := a.storage.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("failed to delete cart export: %w", err)
	}
	return nil
}
