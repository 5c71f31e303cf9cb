package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a requested object does not exist in the
// backing store.
var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

// Provider abstracts the object store holding uploaded images. The local
// implementation maps buckets to directories; the S3 implementation works
// against AWS S3 or any compatible endpoint such as MinIO.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}
