package repository

import (
	"bytes"
	"context"
	"path"

	"github.com/klauspost/compress/zstd"

	"codejudge/internal/common/storage"
	appErr "codejudge/pkg/errors"
)

const sourceContentType = "application/zstd"

// SourceArchive stores compressed copies of submitted sources.
type SourceArchive interface {
	Store(ctx context.Context, submissionID, fileName, code string) (string, error)
}

// ObjectSourceArchive writes zstd-compressed sources to object storage.
type ObjectSourceArchive struct {
	store   storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

// NewObjectSourceArchive creates an archive writing into bucket.
func NewObjectSourceArchive(store storage.ObjectStorage, bucket string) (*ObjectSourceArchive, error) {
	if store == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("object storage is required")
	}
	if bucket == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("archive bucket is required")
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "create zstd encoder failed")
	}
	return &ObjectSourceArchive{store: store, bucket: bucket, encoder: encoder}, nil
}

// ObjectKey returns the archive key of a submitted file.
func ObjectKey(submissionID, fileName string) string {
	return path.Join("submissions", submissionID, fileName+".zst")
}

// Store compresses code and uploads it, returning the object key.
func (a *ObjectSourceArchive) Store(ctx context.Context, submissionID, fileName, code string) (string, error) {
	if submissionID == "" || fileName == "" {
		return "", appErr.New(appErr.InvalidParams).WithMessage("submission id and file name are required")
	}
	key := ObjectKey(submissionID, fileName)
	compressed := a.encoder.EncodeAll([]byte(code), nil)
	if err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), sourceContentType); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "archive source failed")
	}
	return key, nil
}
