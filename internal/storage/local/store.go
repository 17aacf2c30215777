// Package local keeps uploaded database files in a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sqlask/sqlask/internal/storage"
)

const (
	fileNameSuffix = ".name"
	tempPrefix     = ".upload-"
)

// SQLite leaves these next to a database it has opened.
var sidecarSuffixes = []string{fileNameSuffix, "-journal", "-wal", "-shm"}

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{root: abs}, nil
}

// Put writes body to a temp file next to the target and renames it into place,
// so readers never observe a partial upload.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	target, err := s.LocalPath(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), tempPrefix+"*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	written, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", key, errors.Join(copyErr, closeErr))
	}
	if size >= 0 && written != size {
		_ = os.Remove(tmpPath)
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: wrote %d bytes, expected %d", key, written, size)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return storage.ObjectInfo{}, fmt.Errorf("commit object %q: %w", key, err)
	}
	if name := strings.TrimSpace(opts.FileName); name != "" {
		if err := os.WriteFile(target+fileNameSuffix, []byte(name), 0o640); err != nil {
			return storage.ObjectInfo{}, fmt.Errorf("write object name %q: %w", key, err)
		}
	}
	return s.Stat(ctx, key)
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := s.LocalPath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return file, nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	target, err := s.LocalPath(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}
	if info.IsDir() {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	result := storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()}
	if name, err := os.ReadFile(target + fileNameSuffix); err == nil {
		result.FileName = string(name)
	}
	return result, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	target, err := s.LocalPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	for _, suffix := range sidecarSuffixes {
		if err := os.Remove(target + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete object %q: %w", key, err)
		}
	}
	// Drop the per-session directory once it is empty.
	_ = os.Remove(filepath.Dir(target))
	return nil
}

// DeletePrefix removes the directory prefix names, along with every object
// below it.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	dir, err := s.LocalPath(prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	err = filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() && !isAuxiliary(entry.Name()) {
			removed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list prefix %q: %w", prefix, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	return removed, nil
}

func isAuxiliary(name string) bool {
	if strings.HasPrefix(name, tempPrefix) {
		return true
	}
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// LocalPath maps key to a file under the store root.
func (s *Store) LocalPath(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if strings.HasSuffix(cleaned, fileNameSuffix) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}
