// Package export stores exported chart documents and serves time-limited
// download links. The production implementation is S3-backed; the Store
// interface lets tests and unconfigured deployments substitute their own.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store persists export documents under opaque keys.
type Store interface {
	// Put writes the document under key.
	Put(ctx context.Context, key, contentType string, body []byte) error

	// URL returns a time-limited download link for a stored document.
	URL(ctx context.Context, key string) (string, error)
}

// S3Store stores exports in an S3 bucket.
type S3Store struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// NewS3Store creates an export store writing to bucket under prefix.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    prefix,
		urlExpiry: 24 * time.Hour,
	}
}

// NewS3StoreFromEnv builds an S3Store using the ambient AWS configuration
// (environment, shared config, instance role).
func NewS3StoreFromEnv(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// WithURLExpiry sets how long download links stay valid and returns s.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// Put uploads the document.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("export: put %s: %w", key, err)
	}
	return nil
}

// URL presigns a GET for the stored document.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("export: presign %s: %w", key, err)
	}
	return req.URL, nil
}
