package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the exporters and importers need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// New picks the configured backend. Disabled storage writes below fallbackDir.
func New(cfg config.StorageConfig, fallbackDir string) (ObjectStorage, error) {
	if !cfg.Enabled {
		return NewLocalStorage(fallbackDir), nil
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "minio", "s3":
		return NewMinioClient(cfg)
	case "sevalla":
		return NewSevallaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

func requireBucket(cfg config.StorageConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("storage endpoint must be provided")
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("storage bucket must be provided")
	}
	return nil
}

// splitEndpoint strips a URL scheme from endpoint. An explicit scheme wins
// over useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	default:
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "//"), "/"), useSSL
	}
}
