// Package storage keeps exported reports in object storage and hands out
// time-limited download links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/dealdesk/pkg/config"
)

var ErrObjectNotFound = errors.New("object not found")

type Store interface {
	Provider() string
	Put(ctx context.Context, key string, body []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Close() error
}

// New builds the configured store. An empty provider returns a nil Store;
// callers then stream reports inline.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("STORAGE_BUCKET is required for s3")
		}
		return NewS3Store(ctx, cfg, logger)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, errors.New("STORAGE_BUCKET is required for gcs")
		}
		return NewGCSStore(ctx, cfg, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}
