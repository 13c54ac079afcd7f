package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/config"
)

func TestNewArtifactStore(t *testing.T) {
	store, err := NewArtifactStore(&config.ArtifactsConfig{
		Enabled:   true,
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "datagen",
		Prefix:    "/runs/",
	})
	require.NoError(t, err)
	assert.Equal(t, "runs/20240101T000000Z/users.csv", store.ObjectKey("20240101T000000Z", "users.csv"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "run/users.csv", objectKey("", "run", "users.csv"))
	assert.Equal(t, "a/b/run/manifest.json", objectKey("a/b", "run", "manifest.json"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", contentType("/tmp/users.csv"))
	assert.Equal(t, "application/json", contentType("manifest.json"))
	assert.Equal(t, "application/octet-stream", contentType("LATEST_RUN"))
}
