package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cartoncaps/analytics/internal/config"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/logging"
)

// ArtifactStore uploads run outputs to an S3-compatible bucket
type ArtifactStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewArtifactStore creates a MinIO client for cfg
func NewArtifactStore(cfg *config.ArtifactsConfig) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewConfigError("invalid artifact store configuration", err)
	}

	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectKey returns the key of a file uploaded for runID
func (s *ArtifactStore) ObjectKey(runID, name string) string {
	return objectKey(s.prefix, runID, name)
}

func objectKey(prefix, runID, name string) string {
	if prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(prefix, runID, name)
}

// contentType picks the object content type from the file extension
func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// EnsureBucket creates the bucket when it does not exist
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.NewStorageError("check bucket "+s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperrors.NewStorageError("create bucket "+s.bucket, err)
	}
	return nil
}

// UploadRun uploads every file under <prefix>/<runID>/ and returns the object keys
func (s *ArtifactStore) UploadRun(ctx context.Context, runID string, files []string) ([]string, error) {
	logger := logging.FromContext(ctx).WithField("component", "artifacts")

	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := s.ObjectKey(runID, filepath.Base(file))
		info, err := s.client.FPutObject(ctx, s.bucket, key, file, minio.PutObjectOptions{
			ContentType: contentType(file),
			UserMetadata: map[string]string{
				"run-id": runID,
			},
		})
		if err != nil {
			return nil, apperrors.NewStorageError("upload "+key, err)
		}
		keys = append(keys, key)

		logger.WithFields(map[string]interface{}{
			"bucket": s.bucket,
			"key":    key,
			"bytes":  info.Size,
		}).Debug("Uploaded artifact")
	}

	logger.WithFields(map[string]interface{}{
		"bucket": s.bucket,
		"run_id": runID,
		"files":  len(keys),
	}).Info("Uploaded run artifacts")
	return keys, nil
}
