package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ds124wfegd/timecapsule/config"
	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

var ErrStorageDisabled = errors.New("media storage is not configured")

// MinioStorage keeps capsule media in an S3-compatible bucket.
type MinioStorage struct {
	client    *minio.Client
	bucket    string
	folder    string
	publicURL string
}

func NewClient(cfg *config.StorageConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func NewMinioStorage(ctx context.Context, cfg *config.StorageConfig) (*MinioStorage, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := EnsureBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}

	logrus.WithField("bucket", cfg.Bucket).Info("Media storage initialized")
	return &MinioStorage{
		client:    client,
		bucket:    cfg.Bucket,
		folder:    cfg.Folder,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

func (s *MinioStorage) Store(ctx context.Context, upload entity.MediaUpload) (*entity.Media, error) {
	kind := KindFor(upload.ContentType)
	key := ObjectKey(s.folder, kind, upload.Filename)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, upload.Reader, upload.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", upload.Filename, err)
	}

	return &entity.Media{
		URL:          s.publicURL + "/" + s.bucket + "/" + key,
		StorageID:    key,
		Kind:         kind,
		OriginalName: upload.Filename,
	}, nil
}

func (s *MinioStorage) Delete(ctx context.Context, storageID string, _ entity.MediaKind) error {
	if err := s.client.RemoveObject(ctx, s.bucket, storageID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", storageID, err)
	}
	return nil
}

// KindFor maps a MIME type to the stored media kind.
func KindFor(contentType string) entity.MediaKind {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return entity.MediaVideo
	}
	return entity.MediaImage
}

// ObjectKey builds "<folder>/<kind>s/<uuid><ext>".
func ObjectKey(folder string, kind entity.MediaKind, filename string) string {
	name := uuid.NewString() + strings.ToLower(path.Ext(filename))
	return path.Join(folder, string(kind)+"s", name)
}

// Disabled rejects uploads when no object storage is configured.
type Disabled struct{}

func (Disabled) Store(context.Context, entity.MediaUpload) (*entity.Media, error) {
	return nil, ErrStorageDisabled
}

func (Disabled) Delete(context.Context, string, entity.MediaKind) error {
	return nil
}
