// Package objstore adapts S3-compatible object storage for the archive.
// It works against AWS S3 and against MinIO or Ceph through a custom
// endpoint with path-style addressing.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/couchcryptid/storm-data-archive/internal/config"
)

// Store wraps an S3 client scoped to the archive bucket.
type Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// Option tweaks the S3 client construction.
type Option func(*s3.Options)

// WithEndpoint forces a custom S3 endpoint (eg MinIO, Ceph).
func WithEndpoint(url string) Option {
	return func(o *s3.Options) {
		o.BaseEndpoint = aws.String(url)
	}
}

// WithPathStyle uses path-style addressing instead of virtual-host.
func WithPathStyle() Option {
	return func(o *s3.Options) {
		o.UsePathStyle = true
	}
}

// New builds a Store from the archive configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []Option
	if cfg.S3Endpoint != "" {
		opts = append(opts, WithEndpoint(cfg.S3Endpoint))
	}
	if cfg.S3PathStyle {
		opts = append(opts, WithPathStyle())
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		for _, opt := range opts {
			opt(o)
		}
	})

	return &Store{client: client, bucket: cfg.S3Bucket, logger: logger}, nil
}

// NewWithClient wires an existing client, for tests against a fake endpoint.
func NewWithClient(client *s3.Client, bucket string, logger *slog.Logger) *Store {
	return &Store{client: client, bucket: bucket, logger: logger}
}

// Bucket returns the bucket this store writes to.
func (s *Store) Bucket() string {
	return s.bucket
}

// Put streams body to the given key.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// GetBytes fetches an object into memory. Suitable for reference documents,
// not for product files.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// DownloadToFile fetches an object into a temp file under dir and returns
// its path. The caller removes the file when done.
func (s *Store) DownloadToFile(ctx context.Context, key, dir string) (string, error) {
	downloader := manager.NewDownloader(s.client)

	f, err := os.CreateTemp(dir, "objstore-*.nc")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", key, err)
	}

	_ = f.Close()
	return f.Name(), nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err is S3's missing-key error.
func IsNotFound(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}
