package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	FileName     string
	LastModified time.Time
}

// DatabaseContentType is used for uploads when the caller does not supply one.
const DatabaseContentType = "application/vnd.sqlite3"

type PutOptions struct {
	ContentType string
	// FileName is the name the user uploaded the object under.
	FileName string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// LocalPather is implemented by stores whose objects already live on the local
// filesystem, so callers can open them in place instead of copying.
type LocalPather interface {
	LocalPath(key string) (string, error)
}

// PrefixDeleter is implemented by stores that can remove every object under a
// key prefix. It returns the number of objects removed.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
