package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testArchiveConfig() *config.ArchiveConfig {
	return &config.ArchiveConfig{
		Bucket:       "cart-exports",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	}
}

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.ArchiveConfig
		wantErr string
	}{
		{"nil config", nil, "configuration is required"},
		{"missing bucket", &config.ArchiveConfig{AccessKey: "k", SecretKey: "s"}, "bucket is required"},
		{"missing access key", &config.ArchiveConfig{Bucket: "b", SecretKey: "s"}, "access key is required"},
		{"missing secret key", &config.ArchiveConfig{Bucket: "b", AccessKey: "k"}, "secret key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3ObjectStorage(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid config creates storage", func(t *testing.T) {
		s, err := NewS3ObjectStorage(testArchiveConfig(), WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "cart-exports", s.GetBucket())
		assert.Equal(t, 15*time.Minute, s.presignExpiration)
	})

	t.Run("endpoint without scheme", func(t *testing.T) {
		cfg := testArchiveConfig()
		cfg.Endpoint = "minio:9000"
		cfg.UseSSL = true
		_, err := NewS3ObjectStorage(cfg, WithPresignExpiration(time.Hour))
		require.NoError(t, err)
	})
}

func TestS3ObjectStorage_GenerateDownloadURL(t *testing.T) {
	s, err := NewS3ObjectStorage(testArchiveConfig(), WithPresignExpiration(time.Hour))
	require.NoError(t, err)

	t.Run("empty storage key returns error", func(t *testing.T) {
		url, _, err := s.GenerateDownloadURL(context.Background(), "", 0)
		require.Error(t, err)
		assert.Empty(t, url)
	})

	t.Run("presigns without contacting the server", func(t *testing.T) {
		url, expiresAt, err := s.GenerateDownloadURL(context.Background(), "cart-exports/abc.json", 0)
		require.NoError(t, err)
		assert.True(t, strings.Contains(url, "localhost:9000"))
		assert.True(t, strings.Contains(url, "cart-exports"))
		assert.True(t, expiresAt.After(time.Now().Add(59*time.Minute)))
	})
}

func TestS3ObjectStorage_KeyValidation(t *testing.T) {
	s, err := NewS3ObjectStorage(testArchiveConfig())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.Upload(ctx, "", []byte("{}"), "application/json"))
	assert.Error(t, s.DeleteObject(ctx, ""))
	exists, err := s.ObjectExists(ctx, "")
	assert.Error(t, err)
	assert.False(t, exists)
}

// Set STOREFRONT_TEST_S3_ENDPOINT (with MinIO credentials minioadmin/minioadmin) to run.
func TestIntegration_S3UploadAndDelete(t *testing.T) {
	endpoint := os.Getenv("STOREFRONT_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test. Set STOREFRONT_TEST_S3_ENDPOINT to enable.")
	}
	cfg := &config.ArchiveConfig{
		Bucket:       "storefront-integration",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Endpoint:     endpoint,
		UsePathStyle: true,
	}
	s, err := NewS3ObjectStorage(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx))

	key := "integration/cart.json"
	require.NoError(t, s.Upload(ctx, key, []byte(`{"items":[]}`), "application/json"))
	exists, err := s.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteObject(ctx, key))
	exists, err = s.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryObjectStorage(t *testing.T) {
	s := NewMemoryObjectStorage()
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "exports/1.json", []byte("data"), "application/json"))
	exists, err := s.ObjectExists(ctx, "exports/1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	data, contentType, ok := s.Object("exports/1.json")
	require.True(t, ok)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, "application/json", contentType)

	url, expiresAt, err := s.GenerateDownloadURL(ctx, "exports/1.json", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/download/exports%2F1.json")
	assert.True(t, expiresAt.After(time.Now()))

	require.NoError(t, s.DeleteObject(ctx, "exports/1.json"))
	exists, _ = s.ObjectExists(ctx, "exports/1.json")
	assert.False(t, exists)
}
