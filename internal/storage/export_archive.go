package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ExportManifest records what was written to the ledger for one order.
type ExportManifest struct {
	ExternalRef  string                   `json:"external_ref"`
	OrderID      uuid.UUID                `json:"order_id"`
	OrderNumber  string                   `json:"order_number"`
	CustomerCode string                   `json:"customer_code"`
	HeaderTable  string                   `json:"header_table"`
	DetailTable  string                   `json:"detail_table"`
	Header       map[string]interface{}   `json:"header"`
	Lines        []map[string]interface{} `json:"lines"`
	ExportedAt   time.Time                `json:"exported_at"`
}

// ExportArchive keeps a copy of every export manifest.
type ExportArchive interface {
	Store(ctx context.Context, manifest *ExportManifest) (string, error)
}

// ObjectName is exports/<yyyy>/<mm>/<externalRef>.json.
func ObjectName(externalRef string, at time.Time) string {
	return fmt.Sprintf("exports/%04d/%02d/%s.json", at.Year(), int(at.Month()), externalRef)
}

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

type MinioArchive struct {
	client objectStore
	bucket string
}

func NewMinioArchive(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

func (m *MinioArchive) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *MinioArchive) Store(ctx context.Context, manifest *ExportManifest) (string, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export manifest: %w", err)
	}
	name := ObjectName(manifest.ExternalRef, manifest.ExportedAt)
	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

type discardArchive struct{}

// NewDiscardArchive is used when archiving is disabled.
func NewDiscardArchive() ExportArchive { return discardArchive{} }

func (discardArchive) Store(context.Context, *ExportManifest) (string, error) { return "", nil }
