package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
)

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBlobStore implements port.BlobStore on an S3-compatible bucket
type MinioBlobStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinioBlobStore connects to the endpoint and creates the bucket if missing
func NewMinioBlobStore(ctx context.Context, cfg MinioConfig, logger *zap.Logger) (*MinioBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Created storage bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinioBlobStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Store uploads content under a fresh object key
func (s *MinioBlobStore) Store(ctx context.Context, content []byte, contentType string) (string, error) {
	ref := objectKey(time.Now(), contentType)

	_, err := s.client.PutObject(ctx, s.bucket, ref, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("Failed to upload object", zap.String("ref", ref), zap.Error(err))
		return "", fmt.Errorf("upload file: %w", err)
	}

	return ref, nil
}

// Retrieve downloads the object stored under ref
func (s *MinioBlobStore) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ref, err)
	}
	return content, nil
}

var _ port.BlobStore = (*MinioBlobStore)(nil)
