// Package storage keeps run artifacts (JSON reports and screenshots) in a
// blob store: the local filesystem, AWS S3 or a MinIO server.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a requested object does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a key is empty, absolute or escapes the root.
	ErrInvalidPath = errors.New("invalid path")
)

// Backend names accepted by Config.Type.
const (
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeMinio = "minio"
)

// BlobStorage defines the interface for storing and retrieving artifacts.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetURL returns a URL for accessing the data at the specified path.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Type string

	// local
	BaseDir string

	// s3 and minio
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PresignExpiry time.Duration
}

// New creates the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeLocal:
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case TypeS3:
		s, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return s, nil

	case TypeMinio:
		s, err := NewMinioStorage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO storage: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// ReadAll downloads the object at p into memory.
func ReadAll(ctx context.Context, s BlobStorage, p string) ([]byte, error) {
	rc, err := s.Download(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// objectKey normalizes p into a slash separated key relative to the store
// root.
func objectKey(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	key := path.Clean(filepath.ToSlash(p))
	if strings.HasPrefix(key, "/") || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
	}
	if key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}
	return key, nil
}

// contentType guesses the MIME type of an artifact from its extension.
func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".html":
		return "text/html"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
