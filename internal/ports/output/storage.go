// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// ObjectStorage defines the secondary port for object storage operations.
type ObjectStorage interface {
	// List returns all location export files in the storage.
	List(ctx context.Context) ([]StorageObject, error)

	// Download downloads an export file to the local filesystem.
	Download(ctx context.Context, key string, dest string) error

	// GetReader returns a reader for the given object.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject represents a file in object storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)

// ExportExtensions lists the file extensions of location export files.
var ExportExtensions = []string{".json", ".yaml", ".yml"}

// IsExportFile returns true if the name has a location export extension.
func IsExportFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ExportExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
