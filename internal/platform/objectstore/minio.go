// Package objectstore implements imagestore.Store on S3-compatible object storage
// so that generated images survive restarts and session eviction.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/imagestore"
)

// MinIOStore wraps a MinIO client bound to a single bucket.
type MinIOStore struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinIOStore creates a MinIOStore from configuration. It does not contact the server;
// call Init before use.
func NewMinIOStore(cfg config.MinIOConfig, logger *slog.Logger) (*MinIOStore, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &MinIOStore{
		mc:     mc,
		bucket: cfg.Bucket,
		logger: logger.With("component", "minio_image_store", "bucket", cfg.Bucket),
	}, nil
}

// Init creates the bucket if it doesn't exist.
func (s *MinIOStore) Init(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		s.logger.Info("bucket created")
	}
	return nil
}

// Put implements imagestore.Store
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte, mimeType string) (imagestore.Ref, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	info, err := s.mc.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return imagestore.Ref{}, fmt.Errorf("upload %s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("image uploaded", "key", key, "size", info.Size)
	return imagestore.Ref{Key: key, MIMEType: mimeType, Size: info.Size}, nil
}

// Get implements imagestore.Store
func (s *MinIOStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError(key, err)
	}
	return data, nil
}

// DeletePrefix implements imagestore.Store
func (s *MinIOStore) DeletePrefix(ctx context.Context, prefix string) error {
	objects := s.mc.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("list %s/%s: %w", s.bucket, prefix, obj.Err)
		}
		if err := s.mc.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s/%s: %w", s.bucket, obj.Key, err)
		}
	}
	return nil
}

// Durable implements imagestore.Store
func (s *MinIOStore) Durable() bool {
	return true
}

func (s *MinIOStore) mapError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", imagestore.ErrImageNotFound, key)
	}
	return fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
}
