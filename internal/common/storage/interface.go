package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store surface used for source archiving.
type ObjectStorage interface {
	// EnsureBucket creates bucket when it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads sizeBytes from reader to bucket/objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
}
