package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Regexp(t, `^1700000000123-[0-9a-f]{8}my_cat\.jpg$`, ObjectName(at, "my cat.jpg"))
	assert.Regexp(t, `^1700000000123-[0-9a-f]{8}evil\.png$`, ObjectName(at, "../../etc/evil.png"))
	assert.Regexp(t, `^1700000000123-[0-9a-f]{8}photo\.jpg$`, ObjectName(at, `C:\Users\me\photo.jpg`))

	assert.NotEqual(t, ObjectName(at, "image.jpg"), ObjectName(at, "image.jpg"))
}

func TestLocalStorageKeepsSameNamedUploads(t *testing.T) {
	ctx := context.Background()
	backend, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)
	s := NewStorage(backend)
	require.NoError(t, s.EnsureBucket(ctx))

	at := time.UnixMilli(1700000000123)
	first, second := ObjectName(at, "image.jpg"), ObjectName(at, "image.jpg")
	_, err = s.Write(ctx, first, "image/jpeg", []byte("first"))
	require.NoError(t, err)
	_, err = s.Write(ctx, second, "image/jpeg", []byte("second"))
	require.NoError(t, err)

	for name, want := range map[string]string{first: "first", second: "second"} {
		rc, err := s.Open(ctx, name)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "x.jpg", UploadName("/uploads/x.jpg"))
	assert.Equal(t, "x.jpg", UploadName(`C:\app\public\uploads\x.jpg`))
	assert.Equal(t, "x.jpg", UploadName("https://storage.googleapis.com/bucket/uploads/x.jpg"))
	assert.Equal(t, "", UploadName(""))
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewLocalClient(dir)
	require.NoError(t, err)
	s := NewStorage(backend)
	require.NoError(t, s.EnsureBucket(ctx))

	location, err := s.Write(ctx, "1x.jpg", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "uploads", "1x.jpg"), location)

	rc, err := s.Open(ctx, "1x.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, s.Remove(ctx, "/uploads/1x.jpg"))
	_, err = s.Open(ctx, "1x.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, location), ErrNotFound)
}

func TestWriteRejectsPathNames(t *testing.T) {
	backend, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)
	s := NewStorage(backend)

	for _, name := range []string{"", "..", "a/b.jpg", `a\b.jpg`} {
		_, err := s.Write(context.Background(), name, "", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, name)
	}
}
