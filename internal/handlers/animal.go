package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/services"
	"github.com/adoptly/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxMultipartMemory = 32 << 20
	formFieldFile      = "file"
	formFieldDesc      = "description"
	formFieldType      = "type"
	formFieldAge       = "age"
	formFieldCity      = "city"
	formFieldGender    = "gender"
)

// Listings is the listing behaviour the HTTP layer needs.
type Listings interface {
	CreateListing(ctx context.Context, identity *auth.Identity, fields services.ListingFields, uploads []services.Upload) (types.Animal, []types.Photo, error)
	GetListing(ctx context.Context, id uuid.UUID) (types.Animal, error)
	ListPhotos(ctx context.Context, animalID uuid.UUID) ([]types.Photo, error)
	Filter(ctx context.Context, filter types.AnimalFilter) ([]types.Animal, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]types.Animal, error)
	ListMine(ctx context.Context, identity *auth.Identity) ([]types.Animal, error)
	UpdateListing(ctx context.Context, id uuid.UUID, identity *auth.Identity, fields services.ListingFields) (types.Animal, error)
	DeleteListing(ctx context.Context, id uuid.UUID, identity *auth.Identity) error
}

// AnimalHandler provides HTTP handlers for adoption listings.
type AnimalHandler struct {
	animals        Listings
	log            logrus.FieldLogger
	maxUploadBytes int64
}

func NewAnimalHandler(animals Listings, log logrus.FieldLogger, maxUploadBytes int64) *AnimalHandler {
	return &AnimalHandler{
		animals:        animals,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// AnimalRouter registers listing routes on the given router.
func AnimalRouter(
	r chi.Router,
	animals Listings,
	authMiddleware func(http.Handler) http.Handler,
	log logrus.FieldLogger,
	maxUploadBytes int64,
) {
	handler := NewAnimalHandler(animals, log, maxUploadBytes)

	r.Get("/", handler.ListAnimals)
	r.With(authMiddleware).Post("/", handler.CreateAnimal)
	r.Route("/{animalID}", func(r chi.Router) {
		r.Get("/", handler.GetAnimal)
		r.With(authMiddleware).Put("/", handler.UpdateAnimal)
		r.With(authMiddleware).Delete("/", handler.DeleteAnimal)
	})
}

func (h *AnimalHandler) ListAnimals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	animals, err := h.animals.Filter(r.Context(), types.AnimalFilter{
		Type:   strings.TrimSpace(query.Get("type")),
		City:   strings.TrimSpace(query.Get("city")),
		Gender: strings.TrimSpace(query.Get("gender")),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

func (h *AnimalHandler) GetAnimal(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "animalID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid animal id")
		return
	}

	animal, err := h.animals.GetListing(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	photos, err := h.animals.ListPhotos(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, AnimalResponse{Animal: animal, Photos: photos})
}

func (h *AnimalHandler) CreateAnimal(w http.ResponseWriter, r *http.Request) {
	fields, uploads, err := h.parseAnimalForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	animal, photos, err := h.animals.CreateListing(r.Context(), auth.FromContext(r.Context()), fields, uploads)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, AnimalResponse{Animal: animal, Photos: photos})
}

func (h *AnimalHandler) UpdateAnimal(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "animalID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid animal id")
		return
	}

	var req AnimalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.animals.UpdateListing(r.Context(), id, auth.FromContext(r.Context()), req.fields())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *AnimalHandler) DeleteAnimal(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "animalID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid animal id")
		return
	}

	if err := h.animals.DeleteListing(r.Context(), id, auth.FromContext(r.Context())); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AnimalRequest is the JSON body of a listing update.
type AnimalRequest struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Age         string `json:"age"`
	City        string `json:"city"`
	Gender      string `json:"gender"`
}

func (req AnimalRequest) fields() services.ListingFields {
	return services.ListingFields{
		Description: req.Description,
		Type:        req.Type,
		Age:         req.Age,
		City:        req.City,
		Gender:      req.Gender,
	}
}

// AnimalResponse is a listing with its photos.
type AnimalResponse struct {
	types.Animal
	Photos []types.Photo `json:"photos"`
}

func (h *AnimalHandler) parseAnimalForm(w http.ResponseWriter, r *http.Request) (services.ListingFields, []services.Upload, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.ListingFields{}, nil, errors.New("upload too large")
		}
		return services.ListingFields{}, nil, errors.New("invalid multipart form")
	}

	fields := services.ListingFields{
		Description: r.FormValue(formFieldDesc),
		Type:        r.FormValue(formFieldType),
		Age:         r.FormValue(formFieldAge),
		City:        r.FormValue(formFieldCity),
		Gender:      r.FormValue(formFieldGender),
	}

	uploads, err := parseUploads(r.MultipartForm, h.maxUploadBytes)
	if err != nil {
		return services.ListingFields{}, nil, err
	}
	return fields, uploads, nil
}

// parseUploads reads every "file" part. Empty parts, as sent by a form with
// no file chosen, are skipped.
func parseUploads(form *multipart.Form, limit int64) ([]services.Upload, error) {
	if form == nil {
		return nil, nil
	}

	uploads := make([]services.Upload, 0, len(form.File[formFieldFile]))
	for _, fileHeader := range form.File[formFieldFile] {
		if fileHeader.Filename == "" || fileHeader.Size == 0 {
			continue
		}

		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %q: %w", fileHeader.Filename, err)
		}
		data, err := readFileLimited(file, limit)
		_ = file.Close()
		if err != nil {
			return nil, err
		}

		uploads = append(uploads, services.Upload{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = maxMultipartMemory
	}
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
