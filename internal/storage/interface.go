package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist
var ErrNotFound = errors.New("object not found")

// Storage is the media store the backend reads originals from and
// writes thumbnails to. Production uses S3; development and tests use
// the local-disk implementation.
type Storage interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

var (
	_ Storage = (*Local)(nil)
	_ Storage = (*S3Store)(nil)
)
