package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config contains the connection settings for an S3-compatible mirror.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// S3Mirror implements Mirror against an S3-compatible object store.
type S3Mirror struct {
	client *minio.Client
	bucket string
}

var _ Mirror = (*S3Mirror)(nil)

// NewS3Mirror connects to the configured object store and ensures the bucket exists.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
	}

	return &S3Mirror{client: client, bucket: cfg.Bucket}, nil
}

func objectName(principal string) string {
	return "users/" + principal + "/vault/crypto_metadata.json"
}

func (m *S3Mirror) Push(ctx context.Context, principal string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding metadata document: %w", err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, objectName(principal),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("uploading metadata document: %w", err)
	}
	return nil
}

func (m *S3Mirror) Fetch(ctx context.Context, principal string) (*Document, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectName(principal), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching metadata document: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("reading metadata document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding metadata document: %w", err)
	}
	return &doc, nil
}
