package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/cache"
	"github.com/adoptly/apiserver/internal/storage"
	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultOperationTimeout = 10 * time.Second

// AnimalRepository defines persistence operations for listings.
type AnimalRepository interface {
	Get(ctx context.Context, id uuid.UUID) (types.Animal, error)
	List(ctx context.Context, filter types.AnimalFilter) ([]types.Animal, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]types.Animal, error)
	CreateWithPhotos(ctx context.Context, animal types.Animal, photos []types.Photo) (types.Animal, []types.Photo, error)
	UpdateOwned(ctx context.Context, animal types.Animal, ownerID uuid.UUID) (types.Animal, error)
	DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) ([]types.Photo, error)
}

// PhotoRepository defines persistence operations for listing photos.
type PhotoRepository interface {
	ListByAnimal(ctx context.Context, animalID uuid.UUID) ([]types.Photo, error)
}

// UserLookup resolves the user behind a session.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// BlobStore persists uploaded files.
type BlobStore interface {
	Write(ctx context.Context, name, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, location string) error
}

// ListingCache holds recently read listings. Fill must not overwrite a
// present key or one evicted moments ago.
type ListingCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Fill(ctx context.Context, key string, value any) error
}

// Invalidator signals that the content behind a path changed.
type Invalidator interface {
	Invalidate(ctx context.Context, path string)
}

// Upload is a file submitted with a new listing.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AnimalService manages the lifecycle of adoption listings.
type AnimalService struct {
	animals     AnimalRepository
	photos      PhotoRepository
	users       UserLookup
	blobs       BlobStore
	cache       ListingCache
	invalidator Invalidator
	log         logrus.FieldLogger
	timeout     time.Duration
	now         func() time.Time
}

// AnimalServiceDeps groups the collaborators of AnimalService.
type AnimalServiceDeps struct {
	Animals     AnimalRepository
	Photos      PhotoRepository
	Users       UserLookup
	Blobs       BlobStore
	Cache       ListingCache
	Invalidator Invalidator
	Log         logrus.FieldLogger
	Timeout     time.Duration
}

func NewAnimalService(deps AnimalServiceDeps) *AnimalService {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &AnimalService{
		animals:     deps.Animals,
		photos:      deps.Photos,
		users:       deps.Users,
		blobs:       deps.Blobs,
		cache:       deps.Cache,
		invalidator: deps.Invalidator,
		log:         deps.Log,
		timeout:     timeout,
		now:         time.Now,
	}
}

// CreateListing validates fields, stores every upload and then records the
// listing and its photos atomically. Nothing is left behind on failure.
func (s *AnimalService) CreateListing(ctx context.Context, identity *auth.Identity, fields ListingFields, uploads []Upload) (types.Animal, []types.Photo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return types.Animal{}, nil, err
	}

	fields = fields.normalize()
	if err := fields.validate(); err != nil {
		return types.Animal{}, nil, err
	}

	photos := make([]types.Photo, 0, len(uploads))
	written := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		name := storage.ObjectName(s.now(), upload.Filename)
		location, err := s.blobs.Write(ctx, name, upload.ContentType, upload.Data)
		if err != nil {
			s.removeBlobs(written)
			return types.Animal{}, nil, fmt.Errorf("write photo %q: %w: %w", name, ErrStorageUnavailable, err)
		}
		written = append(written, location)
		photos = append(photos, types.Photo{Title: name, Src: location})
	}

	animal, photos, err := s.animals.CreateWithPhotos(ctx, types.Animal{
		Description: fields.Description,
		Type:        fields.Type,
		Age:         fields.Age,
		City:        fields.City,
		Gender:      fields.Gender,
		UserID:      owner.ID,
	}, photos)
	if err != nil {
		s.removeBlobs(written)
		return types.Animal{}, nil, storeError("create listing", err)
	}

	s.log.WithFields(logrus.Fields{
		"animal_id": animal.ID,
		"user_id":   owner.ID,
		"photos":    len(photos),
	}).Info("listing created")

	s.invalidator.Invalidate(ctx, "/animals")
	return animal, publicPhotos(photos), nil
}

// GetListing returns a listing by id, from the cache when possible.
func (s *AnimalService) GetListing(ctx context.Context, id uuid.UUID) (types.Animal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := cache.ListingKey(id)
	var cached types.Animal
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("cache read failed")
	} else if found {
		return cached, nil
	}

	animal, err := s.animals.Get(ctx, id)
	if err != nil {
		return types.Animal{}, storeError("get listing", err)
	}

	if err := s.cache.Fill(ctx, key, animal); err != nil {
		s.log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("cache write failed")
	}
	return animal, nil
}

// ListPhotos returns the photos of a listing with public paths.
func (s *AnimalService) ListPhotos(ctx context.Context, animalID uuid.UUID) ([]types.Photo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	photos, err := s.photos.ListByAnimal(ctx, animalID)
	if err != nil {
		return nil, storeError("list photos", err)
	}
	return publicPhotos(photos), nil
}

// ListAll returns every listing.
func (s *AnimalService) ListAll(ctx context.Context) ([]types.Animal, error) {
	return s.Filter(ctx, types.AnimalFilter{})
}

// Filter returns the listings matching every non-empty field of filter.
func (s *AnimalService) Filter(ctx context.Context, filter types.AnimalFilter) ([]types.Animal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	animals, err := s.animals.List(ctx, filter)
	if err != nil {
		return nil, storeError("list listings", err)
	}
	return animals, nil
}

func (s *AnimalService) ListByOwner(ctx context.Context, userID uuid.UUID) ([]types.Animal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	animals, err := s.animals.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeError("list owner listings", err)
	}
	return animals, nil
}

// ListMine returns the listings of the caller.
func (s *AnimalService) ListMine(ctx context.Context, identity *auth.Identity) ([]types.Animal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.ListByOwner(ctx, owner.ID)
}

// UpdateListing replaces the content of a listing owned by the caller.
func (s *AnimalService) UpdateListing(ctx context.Context, id uuid.UUID, identity *auth.Identity, fields ListingFields) (types.Animal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return types.Animal{}, err
	}

	fields = fields.normalize()
	if err := fields.validate(); err != nil {
		return types.Animal{}, err
	}

	animal, err := s.animals.UpdateOwned(ctx, types.Animal{
		ID:          id,
		Description: fields.Description,
		Type:        fields.Type,
		Age:         fields.Age,
		City:        fields.City,
		Gender:      fields.Gender,
	}, owner.ID)
	if err != nil {
		return types.Animal{}, s.ownershipError(ctx, "update listing", id, err)
	}

	s.log.WithFields(logrus.Fields{"animal_id": id, "user_id": owner.ID}).Info("listing updated")
	s.invalidateListing(ctx, id)
	return animal, nil
}

// DeleteListing removes a listing owned by the caller together with its
// photos. Photo files are removed after the records are gone.
func (s *AnimalService) DeleteListing(ctx context.Context, id uuid.UUID, identity *auth.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}

	photos, err := s.animals.DeleteOwned(ctx, id, owner.ID)
	if err != nil {
		return s.ownershipError(ctx, "delete listing", id, err)
	}

	locations := make([]string, 0, len(photos))
	for _, photo := range photos {
		locations = append(locations, photo.Src)
	}
	s.removeBlobs(locations)

	s.log.WithFields(logrus.Fields{"animal_id": id, "user_id": owner.ID}).Info("listing deleted")
	s.invalidateListing(ctx, id)
	return nil
}

// resolveOwner maps the session identity to a stored user.
func (s *AnimalService) resolveOwner(ctx context.Context, identity *auth.Identity) (types.User, error) {
	if identity == nil || identity.Email == "" {
		return types.User{}, ErrUnauthorized
	}
	user, err := s.users.GetByEmail(ctx, identity.Email)
	if err != nil {
		err = storeError("resolve session user", err)
		if errors.Is(err, ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, err
	}
	return user, nil
}

// ownershipError explains a failed conditional write: the listing is either
// missing or owned by someone else.
func (s *AnimalService) ownershipError(ctx context.Context, op string, id uuid.UUID, err error) error {
	err = storeError(op, err)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, getErr := s.animals.Get(ctx, id); getErr != nil {
		return storeError(op, getErr)
	}
	return fmt.Errorf("%s: %w", op, ErrForbidden)
}

func (s *AnimalService) invalidateListing(ctx context.Context, id uuid.UUID) {
	s.invalidator.Invalidate(ctx, "/animals/"+id.String())
	s.invalidator.Invalidate(ctx, "/animals")
}

// removeBlobs deletes files best effort. It runs on its own deadline so a
// cancelled request still cleans up.
func (s *AnimalService) removeBlobs(locations []string) {
	removeBlobs(s.blobs, locations, s.timeout, s.log)
}

func removeBlobs(blobs BlobStore, locations []string, timeout time.Duration, log logrus.FieldLogger) {
	if len(locations) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, location := range locations {
		if err := blobs.Remove(ctx, location); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithFields(logrus.Fields{"location": location, "error": err}).Warn("photo removal failed")
		}
	}
}

func publicPhotos(photos []types.Photo) []types.Photo {
	out := make([]types.Photo, len(photos))
	for i, photo := range photos {
		photo.Src = CleanImagePath(photo.Src)
		out[i] = photo
	}
	return out
}
