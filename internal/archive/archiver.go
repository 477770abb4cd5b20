package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/biostream/sentinel/internal/shared/config"
	"github.com/biostream/sentinel/internal/telemetry"
)

const archiveContentType = "application/octet-stream"

// ObjectStore is the subset of the MinIO client the archiver uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient connects to the cold object store.
func NewClient(cfg config.ObjectStoreConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return client, nil
}

// Archiver serializes buffered batches to parquet and uploads each batch as a
// single uniquely-named object. A retried flush may produce a duplicate
// object; duplicates are accepted, data loss is not.
type Archiver struct {
	store  ObjectStore
	bucket string
	log    *zap.Logger
}

// NewArchiver creates a cold-store archiver writing to the given bucket.
func NewArchiver(store ObjectStore, bucket string, log *zap.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, log: log}
}

// EnsureBucket creates the archive bucket if it does not exist. Idempotent.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	a.log.Info("created archive bucket", zap.String("bucket", a.bucket))
	return nil
}

// Flush serializes the batch and uploads it as one object, returning the
// object key.
func (a *Archiver) Flush(ctx context.Context, entries []telemetry.ColdBatchEntry) (string, error) {
	data, err := EncodeBatch(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}

	key := ObjectKey()
	_, err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: archiveContentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.log.Info("flushed batch to cold store",
		zap.String("bucket", a.bucket),
		zap.String("object", key),
		zap.Int("records", len(entries)),
		zap.Int("bytes", len(data)),
	)
	return key, nil
}

// ObjectKey generates a unique archive object name.
func ObjectKey() string {
	return fmt.Sprintf("telemetry_batch_%s.parquet", uuid.New())
}
