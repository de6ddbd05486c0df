package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/hugh/dealdesk/pkg/config"
	"google.golang.org/api/option"
)

type GCSStore struct {
	bucket string
	client *storage.Client
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	return &GCSStore{
		bucket: cfg.Bucket,
		client: client,
		logger: logger,
	}, nil
}

func (s *GCSStore) Provider() string { return "gcs" }

func (s *GCSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("writing gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing gcs object %s: %w", key, err)
	}

	s.logger.Debug("stored object", "provider", "gcs", "bucket", s.bucket, "key", key, "bytes", len(body))
	return nil
}

// SignedURL signs with the client's service account credentials.
func (s *GCSStore) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("signing gcs object %s: %w", key, err)
	}
	return url, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
