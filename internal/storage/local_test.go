package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStorage(root)

	if err := store.UploadObject(ctx, "replenishment/2024-03-05/New-1.csv", []byte("a,b\n")); err != nil {
		t.Fatalf("Expected upload to succeed, got %v", err)
	}
	if err := store.UploadObject(ctx, "rules/clinic.csv", []byte("x")); err != nil {
		t.Fatalf("Expected upload to succeed, got %v", err)
	}

	objects, err := store.ListObjects(ctx, "replenishment/")
	if err != nil {
		t.Fatalf("Expected list to succeed, got %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "replenishment/2024-03-05/New-1.csv" || objects[0].Size != 4 {
		t.Errorf("Unexpected listing %+v", objects)
	}

	dest := filepath.Join(t.TempDir(), "out", "copy.csv")
	if err := store.DownloadObject(ctx, objects[0].Key, dest); err != nil {
		t.Fatalf("Expected download to succeed, got %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Expected downloaded file, got %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("Expected downloaded content, got %q", data)
	}
}

func TestLocalStorageKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStorage(root)

	if err := store.UploadObject(context.Background(), "../escape.csv", []byte("x")); err != nil {
		t.Fatalf("Expected upload to succeed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.csv")); err != nil {
		t.Errorf("Expected object to be written inside root, got %v", err)
	}
}

func TestLocalStorageListMissingRoot(t *testing.T) {
	store := NewLocalStorage(filepath.Join(t.TempDir(), "missing"))
	objects, err := store.ListObjects(context.Background(), "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("Expected no objects, got %d", len(objects))
	}
}

func TestNewFallsBackToLocal(t *testing.T) {
	store, err := New(config.StorageConfig{Enabled: false}, t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := store.(*LocalStorage); !ok {
		t.Errorf("Expected local storage, got %T", store)
	}

	if _, err := New(config.StorageConfig{Enabled: true, Provider: "ftp"}, ""); err == nil {
		t.Error("Expected unknown provider to fail")
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://minio:9000", true, "minio:9000", false},
		{"minio:9000", true, "minio:9000", true},
		{"//minio:9000", false, "minio:9000", false},
	}
	for _, tt := range tests {
		host, secure := splitEndpoint(tt.endpoint, tt.useSSL)
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Errorf("splitEndpoint(%q, %v) = (%q, %v), want (%q, %v)",
				tt.endpoint, tt.useSSL, host, secure, tt.wantHost, tt.wantSecure)
		}
	}
}

func TestRemoteClientsRequireSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"minio without endpoint", config.StorageConfig{Enabled: true, Provider: "minio", Bucket: "b"}},
		{"minio without bucket", config.StorageConfig{Enabled: true, Provider: "minio", Endpoint: "minio:9000"}},
		{"sevalla without credentials", config.StorageConfig{Enabled: true, Provider: "sevalla", Endpoint: "x.sevalla.storage", Bucket: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, ""); err == nil {
				t.Error("Expected configuration error")
			}
		})
	}
}
