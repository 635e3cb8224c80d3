// Package media is the ingest boundary for uploaded message attachments.
// The core hands bytes to the store and records only the returned opaque
// reference; it never inspects file contents.
package media

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store accepts uploaded bytes and returns a stable content reference.
type Store interface {
	Store(ctx context.Context, data []byte, mimeType string, filename string) (string, error)
}

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// MinioStore is a Store over an S3-compatible object store.
type MinioStore struct {
	cfg    Config
	client *minio.Client
}

// NewMinioStore connects to the object store.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{cfg: cfg, client: cl}, nil
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Store uploads the bytes under a random key and returns the content URL.
func (s *MinioStore) Store(ctx context.Context, data []byte, mimeType string, filename string) (string, error) {
	key := uuid.NewString() + path.Ext(filename)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return "", err
	}

	base := s.cfg.PublicURL
	if base == "" {
		base = s.client.EndpointURL().String()
	}
	return fmt.Sprintf("%s/%s/%s", base, s.cfg.Bucket, key), nil
}
