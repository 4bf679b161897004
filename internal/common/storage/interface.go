package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by StatObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations used by submission archiving and solution videos.
type ObjectStorage interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// PresignPut returns a URL the client can upload to with a plain HTTP PUT.
	PresignPut(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
	RemoveObject(ctx context.Context, bucket, objectKey string) error

	// ListObjects streams every key under prefix. The channel closes when listing ends or ctx is done.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo
	RemoveObjects(ctx context.Context, bucket string, objectKeys []string) error
}

// ObjectInfo is one listing entry; Err is set on the final entry when listing failed.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
