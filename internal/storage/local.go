package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as files below a root directory.
type LocalClient struct {
	root string
}

// NewLocalClient constructs a disk backend rooted at dir.
func NewLocalClient(dir string) (*LocalClient, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload directory is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalClient{root: root}, nil
}

// EnsureBucket creates the uploads directory.
func (l *LocalClient) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(filepath.Join(l.root, filepath.FromSlash(UploadsPrefix)), 0o755)
}

// Put writes the object to disk.
func (l *LocalClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	target := l.Location(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return err
	}
	return f.Close()
}

// Get opens the object file.
func (l *LocalClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.Location(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes the object file.
func (l *LocalClient) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.Location(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Location returns the absolute file path of key.
func (l *LocalClient) Location(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Bucket returns the root directory.
func (l *LocalClient) Bucket() string {
	return l.root
}
