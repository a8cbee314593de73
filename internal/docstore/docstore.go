// Package docstore wraps MinIO/S3 interactions for template sources and
// generated petitions.
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rbarbosa/peticionador/internal/config"
)

// Store holds the client plus the two bucket names.
type Store struct {
	client          *minio.Client
	templateBucket  string
	generatedBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{
		client:          client,
		templateBucket:  cfg.TemplateBucket,
		generatedBucket: cfg.GeneratedBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.templateBucket, s.generatedBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// TemplateObject describes one source document in the template bucket.
type TemplateObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListTemplates enumerates source documents under a folder prefix, which is
// how the admin "scan folder" operation discovers importable documents.
func (s *Store) ListTemplates(ctx context.Context, prefix string) ([]TemplateObject, error) {
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	var out []TemplateObject
	for obj := range s.client.ListObjects(ctx, s.templateBucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list templates: %w", obj.Err)
		}
		out = append(out, TemplateObject{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// UploadTemplate stores a template source document.
func (s *Store) UploadTemplate(ctx context.Context, objectKey string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.templateBucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload template object: %w", err)
	}
	return nil
}

// DownloadTemplate fetches the raw source bytes of a template.
func (s *Store) DownloadTemplate(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.templateBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get template object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read template object: %w", err)
	}
	return buf, nil
}

// UploadGenerated stores a rendered petition.
func (s *Store) UploadGenerated(ctx context.Context, objectKey string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	_, err := s.client.PutObject(ctx, s.generatedBucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload generated object: %w", err)
	}
	return nil
}

// PresignGeneratedURL returns a signed GET URL for a rendered petition.
func (s *Store) PresignGeneratedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.generatedBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign generated object: %w", err)
	}
	return u.String(), nil
}
