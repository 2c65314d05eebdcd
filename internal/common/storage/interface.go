package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines the object storage operations used for run archives.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads sizeBytes bytes from reader. A negative size streams until EOF.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// PresignGetObject returns a time-limited download URL.
	PresignGetObject(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// ListObjects streams objects under prefix.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo

	// RemoveObjects deletes the given keys.
	RemoveObjects(ctx context.Context, bucket string, keys []string) error
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

// ObjectInfo is one listing entry. Err is set when the listing itself failed.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
	Err          error
}
