package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultPresignTTL = 15 * time.Minute

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Bucket    string `yaml:"bucket"`
}

// MinIOStorage implements ObjectStorage using MinIO S3-compatible APIs.
type MinIOStorage struct {
	core *minio.Core
}

func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("minio accessKey is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio secretKey is required")
	}
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio core failed: %w", err)
	}
	return &MinIOStorage{core: core}, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func (s *MinIOStorage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.core.Client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("minio bucket exists failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.core.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket failed: %w", err)
	}
	return nil
}

func (s *MinIOStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if reader == nil {
		return fmt.Errorf("reader is required")
	}
	if objectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	if _, err := s.core.PutObject(ctx, bucket, objectKey, reader, sizeBytes, "", "", opts); err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}

func (s *MinIOStorage) PresignPut(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error) {
	return s.presign(ctx, http.MethodPut, bucket, objectKey, ttl)
}

func (s *MinIOStorage) PresignGet(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error) {
	return s.presign(ctx, http.MethodGet, bucket, objectKey, ttl)
}

// Content-Type is left unsigned so browsers can upload without matching headers exactly.
func (s *MinIOStorage) presign(ctx context.Context, method, bucket, objectKey string, ttl time.Duration) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("objectKey is required")
	}
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	u, err := s.core.Presign(ctx, method, bucket, objectKey, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("minio presign %s failed: %w", method, err)
	}
	return u.String(), nil
}

func (s *MinIOStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	info, err := s.core.StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectStat{}, ErrObjectNotFound
		}
		return ObjectStat{}, fmt.Errorf("minio stat object failed: %w", err)
	}
	return ObjectStat{
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}, nil
}

func (s *MinIOStorage) RemoveObject(ctx context.Context, bucket, objectKey string) error {
	if err := s.core.Client.RemoveObject(ctx, bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object failed: %w", err)
	}
	return nil
}

func (s *MinIOStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo {
	out := make(chan ObjectInfo)
	go func() {
		defer close(out)
		for obj := range s.core.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			info := ObjectInfo{Key: obj.Key, SizeBytes: obj.Size, Err: obj.Err}
			select {
			case out <- info:
			case <-ctx.Done():
				return
			}
			if obj.Err != nil {
				return
			}
		}
	}()
	return out
}

func (s *MinIOStorage) RemoveObjects(ctx context.Context, bucket string, objectKeys []string) error {
	if len(objectKeys) == 0 {
		return nil
	}
	objCh := make(chan minio.ObjectInfo, len(objectKeys))
	for _, key := range objectKeys {
		objCh <- minio.ObjectInfo{Key: key}
	}
	close(objCh)

	var firstErr error
	for rerr := range s.core.Client.RemoveObjects(ctx, bucket, objCh, minio.RemoveObjectsOptions{}) {
		if firstErr == nil && rerr.Err != nil {
			firstErr = fmt.Errorf("minio remove %s failed: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return firstErr
}
