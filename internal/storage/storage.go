// Package storage abstracts the object store holding test-case packs.
// It is intentionally small so MinIO and other S3-compatible backends
// stay interchangeable.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object store operations the judge needs.
type ObjectStorage interface {
	// GetObject opens a reader for an object. The caller must close
	// the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes int64
	ETag      string
}
