package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/chartmuseum/storage"
)

const defaultSevallaRegion = "us-east-1"

// SevallaClient implements ObjectStorage on Sevalla buckets through
// chartmuseum's Amazon S3 backend.
type SevallaClient struct {
	backend storage.Backend
}

func NewSevallaClient(cfg config.StorageConfig) (*SevallaClient, error) {
	if err := requireBucket(cfg); err != nil {
		return nil, err
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("sevalla credentials must be provided")
	}

	host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	scheme := "https"
	if !secure {
		scheme = "http"
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultSevallaRegion
	}

	// the chartmuseum backend reads credentials from the aws environment
	os.Setenv("AWS_ACCESS_KEY_ID", cfg.AccessKey)
	os.Setenv("AWS_SECRET_ACCESS_KEY", cfg.SecretKey)
	os.Setenv("AWS_REGION", region)
	os.Setenv("AWS_DEFAULT_REGION", region)

	pathStyle := true
	backend := storage.NewAmazonS3BackendWithOptions(
		cfg.Bucket,
		"",
		region,
		scheme+"://"+host,
		"",
		&storage.AmazonS3Options{S3ForcePathStyle: &pathStyle},
	)

	return &SevallaClient{backend: backend}, nil
}

func (c *SevallaClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := c.backend.ListObjects(prefix)
	if err != nil {
		return nil, fmt.Errorf("sevalla list %s failed: %w", prefix, err)
	}
	results := make([]ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := object.Path
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			key = strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(key, "/")
		}
		results = append(results, ObjectInfo{Key: key, Size: int64(len(object.Content))})
	}
	return results, nil
}

func (c *SevallaClient) DownloadObject(ctx context.Context, key, destPath string) error {
	object, err := c.backend.GetObject(key)
	if err != nil {
		return fmt.Errorf("sevalla get %s failed: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, object.Content, 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", destPath, err)
	}
	return nil
}

func (c *SevallaClient) UploadObject(ctx context.Context, key string, data []byte) error {
	if err := c.backend.PutObject(key, data); err != nil {
		return fmt.Errorf("sevalla upload %s failed: %w", key, err)
	}
	return nil
}

var _ ObjectStorage = (*SevallaClient)(nil)
