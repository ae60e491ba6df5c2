package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage keeps artifacts in a bucket on a MinIO server.
type MinioStorage struct {
	client            *minio.Client
	bucket            string
	presignExpiration time.Duration
}

// NewMinioStorage connects to cfg.Endpoint with static credentials and
// creates the bucket when it does not exist.
func NewMinioStorage(ctx context.Context, cfg Config) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("MinIO bucket name cannot be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket, presignExpiration: expiry}, nil
}

func (s *MinioStorage) Upload(ctx context.Context, p string, reader io.Reader) error {
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return nil
}

// Download stats the object first so a missing key surfaces as
// ErrFileNotFound instead of on the first Read.
func (s *MinioStorage) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := objectKey(p)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from MinIO: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to download from MinIO: %w", err)
	}
	return obj, nil
}

func (s *MinioStorage) Delete(ctx context.Context, p string) error {
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrFileNotFound
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}

func (s *MinioStorage) Exists(ctx context.Context, p string) (bool, error) {
	key, err := objectKey(p)
	if err != nil {
		return false, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check MinIO object existence: %w", err)
	}
	return true, nil
}

// GetURL returns a presigned GET URL for an existing object.
func (s *MinioStorage) GetURL(ctx context.Context, p string) (string, error) {
	key, err := objectKey(p)
	if err != nil {
		return "", err
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrFileNotFound
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiration, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	return false
}
