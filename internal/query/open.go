package query

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sqlask/sqlask/internal/storage"
)

// LocalFile is an uploaded database made available on the local filesystem.
type LocalFile struct {
	Path string
	// Copied is set when Path is a temporary copy; writes to it are discarded on Close.
	Copied  bool
	cleanup func()
}

func (f *LocalFile) Close() {
	if f.cleanup != nil {
		f.cleanup()
		f.cleanup = nil
	}
}

// Open returns a local path for source. Stores that implement
// storage.LocalPather are opened in place; anything else is copied into a
// temp dir.
func Open(ctx context.Context, store storage.ObjectStore, source Source) (*LocalFile, error) {
	if store == nil {
		return nil, fmt.Errorf("upload store is required")
	}
	if source.ObjectKey == "" {
		return nil, fmt.Errorf("database object key is required")
	}

	if pather, ok := store.(storage.LocalPather); ok {
		localPath, err := pather.LocalPath(source.ObjectKey)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(localPath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("database %q: %w", source.ObjectKey, storage.ErrObjectNotFound)
			}
			return nil, fmt.Errorf("stat database %q: %w", source.ObjectKey, err)
		}
		return &LocalFile{Path: localPath}, nil
	}

	reader, err := store.Get(ctx, source.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("get database %q: %w", source.ObjectKey, err)
	}
	defer func() { _ = reader.Close() }()

	workDir, err := os.MkdirTemp("", "sqlask-query-")
	if err != nil {
		return nil, fmt.Errorf("create query temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	localPath := filepath.Join(workDir, "database"+source.Extension())
	if err := writeFile(localPath, reader); err != nil {
		cleanup()
		return nil, fmt.Errorf("write local copy of %q: %w", source.ObjectKey, err)
	}
	return &LocalFile{Path: localPath, Copied: true, cleanup: cleanup}, nil
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
