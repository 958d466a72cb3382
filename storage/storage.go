package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"contractdesk-backend/config"

	"github.com/google/uuid"
)

// ErrFileNotFound is returned by Download when nothing is stored at the path
var ErrFileNotFound = errors.New("file not found in storage")

// Storage stores the original bytes of uploaded documents
type Storage interface {
	// Upload stores a file and returns the storage path. size may be -1 when unknown.
	Upload(ctx context.Context, fileID uuid.UUID, filename, contentType string, data io.Reader, size int64) (string, error)

	// Download retrieves a file by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a file by storage path
	Delete(ctx context.Context, storagePath string) error
}

// Type is the storage backend type
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
	TypeMinio Type = "minio"
)

// NewStorage creates the backend selected by cfg.Type
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch Type(cfg.Type) {
	case "", TypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	case TypeMinio:
		if cfg.MinioBucket == "" {
			return nil, errors.New("MINIO_BUCKET environment variable is required for MinIO storage")
		}
		return NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// generateStoragePath generates a unique storage path for a file
func generateStoragePath(fileID uuid.UUID, filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)
	baseName = strings.NewReplacer(" ", "_", "/", "_", "..", "_").Replace(baseName)

	// fileID keeps paths unique; the first two characters spread files over directories
	return fmt.Sprintf("%s/%s_%s%s", fileID.String()[:2], fileID.String(), baseName, ext)
}

// contentTypeFor falls back to a type guessed from the filename
func contentTypeFor(filename, contentType string) string {
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
