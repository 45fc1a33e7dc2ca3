package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

// S3Store persists media blobs to an S3-compatible object store and
// materializes them into a local cache directory on demand.
type S3Store struct {
	client   *minio.Client
	bucket   string
	cacheDir string
	logger   *slog.Logger
}

// NewS3Store creates the object-storage backend and ensures the bucket
// exists. A failure here is a configuration error and fatal at startup.
func NewS3Store(ctx context.Context, cfg config.S3Config, cacheDir string, logger *slog.Logger) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		cacheDir: cacheDir,
		logger:   logger,
	}, nil
}

// Persist uploads the local file and returns an s3:// storage path.
func (s *S3Store) Persist(ctx context.Context, localPath, key, contentType string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	s.logger.Debug("blob persisted to object storage", "bucket", s.bucket, "key", key)
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Materialize downloads the object into the local cache unless a cached
// copy already exists.
func (s *S3Store) Materialize(ctx context.Context, storagePath string) (string, error) {
	key, err := s.objectKey(storagePath)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(s.cacheDir, filepath.FromSlash(key))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("get object: %w", err)
	}
	return localPath, nil
}

// Type identifies this backend.
func (s *S3Store) Type() domain.StorageType {
	return domain.StorageTypeS3
}

func (s *S3Store) objectKey(storagePath string) (string, error) {
	prefix := "s3://" + s.bucket + "/"
	if !strings.HasPrefix(storagePath, prefix) {
		return "", fmt.Errorf("storage path %q is not in bucket %q", storagePath, s.bucket)
	}
	return strings.TrimPrefix(storagePath, prefix), nil
}
