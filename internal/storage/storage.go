package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadsPrefix is the key prefix under which listing photos are stored.
const UploadsPrefix = "uploads/"

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Location returns where the backend keeps key: a file path for the
	// local backend and an object URL for the remote ones.
	Location(key string) string
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Write stores data as an upload named name and returns its location.
func (s *Storage) Write(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key, err := uploadKey(name)
	if err != nil {
		return "", err
	}
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.backend.Location(key), nil
}

// Open returns a reader for the upload named name.
func (s *Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := uploadKey(name)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, key)
}

// Remove deletes the upload referenced by location, which may be a value
// returned by Write or its "/uploads/<name>" form.
func (s *Storage) Remove(ctx context.Context, location string) error {
	key, err := uploadKey(UploadName(location))
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ObjectName builds the stored name for an uploaded file: the upload time
// in epoch milliseconds, a random tag, then the base file name with spaces
// replaced by underscores. Two uploads of the same file in the same
// millisecond still get distinct names.
func ObjectName(at time.Time, filename string) string {
	base := UploadName(filename)
	base = strings.ReplaceAll(base, " ", "_")
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:8] + base
}

// UploadName returns the last element of p, accepting both slash and
// backslash separators.
func UploadName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func uploadKey(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidKey
	}
	return UploadsPrefix + name, nil
}
