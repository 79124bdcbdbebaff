package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/adoptly/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// UploadSource opens stored uploads by name.
type UploadSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ServeUploads streams "/uploads/<name>" from the blob store.
func ServeUploads(source UploadSource, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		rc, err := source.Open(r.Context(), name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			logRequestError(log, r, err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		defer rc.Close()

		if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
	}
}
