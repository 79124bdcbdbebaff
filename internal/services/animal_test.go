package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListing(t *testing.T) {
	f := newFixture()
	owner, id := f.addUser("test@example.com")
	ctx := context.Background()

	animal, photos, err := f.animals.CreateListing(ctx, id, validFields(), []Upload{
		{Filename: "my cat.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
	})
	require.NoError(t, err)

	assert.Equal(t, owner.ID, animal.UserID)
	assert.Equal(t, "Котка", animal.Type)
	require.Len(t, photos, 1)
	assert.Regexp(t, `^1700000000000-[0-9a-f]{8}my_cat\.jpg$`, photos[0].Title)
	assert.Equal(t, "/uploads/"+photos[0].Title, photos[0].Src)
	assert.Equal(t, animal.ID, photos[0].AnimalID)
	assert.Equal(t, 1, f.blobs.count())
	assert.Equal(t, []string{"/animals"}, f.invalidator.all())
}

func TestSameNamedUploadsGetTheirOwnBlobs(t *testing.T) {
	f := newFixture()
	_, ownerID := f.addUser("owner@example.com")
	_, otherID := f.addUser("other@example.com")
	ctx := context.Background()
	image := func(data string) Upload {
		return Upload{Filename: "image.jpg", ContentType: "image/jpeg", Data: []byte(data)}
	}

	_, photos, err := f.animals.CreateListing(ctx, ownerID, validFields(), []Upload{image("front"), image("side")})
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.NotEqual(t, photos[0].Src, photos[1].Src)
	assert.Equal(t, 2, f.blobs.count())

	other, otherPhotos, err := f.animals.CreateListing(ctx, otherID, validFields(), []Upload{image("theirs")})
	require.NoError(t, err)
	assert.Equal(t, 3, f.blobs.count())

	require.NoError(t, f.animals.DeleteListing(ctx, other.ID, otherID))
	assert.Equal(t, 2, f.blobs.count())
	for _, photo := range photos {
		assert.True(t, f.blobs.has(photo.Title), photo.Title)
	}
	assert.False(t, f.blobs.has(otherPhotos[0].Title))
}

func TestCreateListingRequiresKnownUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.animals.CreateListing(ctx, nil, validFields(), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = f.animals.CreateListing(ctx, &auth.Identity{Email: "ghost@example.com"}, validFields(), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	all, err := f.animals.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateListingValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ListingFields)
		field  string
	}{
		{name: "non-numeric age", mutate: func(l *ListingFields) { l.Age = "abc" }, field: "age"},
		{name: "age above range", mutate: func(l *ListingFields) { l.Age = "25" }, field: "age"},
		{name: "negative age", mutate: func(l *ListingFields) { l.Age = "-1" }, field: "age"},
		{name: "empty description", mutate: func(l *ListingFields) { l.Description = "   " }, field: "description"},
		{name: "unknown gender", mutate: func(l *ListingFields) { l.Gender = "male" }, field: "gender"},
		{name: "missing city", mutate: func(l *ListingFields) { l.City = "" }, field: "city"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, id := f.addUser("test@example.com")
			fields := validFields()
			tt.mutate(&fields)

			_, _, err := f.animals.CreateListing(context.Background(), id, fields, []Upload{
				{Filename: "a.jpg", Data: []byte("a")},
			})
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)

			assert.Empty(t, f.db.animals)
			assert.Empty(t, f.db.photos)
			assert.Zero(t, f.blobs.count())
			assert.Empty(t, f.invalidator.all())
		})
	}
}

func TestCreateListingBoundaryAges(t *testing.T) {
	f := newFixture()
	_, id := f.addUser("test@example.com")

	for _, age := range []string{"0", "20", " 7 "} {
		fields := validFields()
		fields.Age = age
		animal, _, err := f.animals.CreateListing(context.Background(), id, fields, nil)
		require.NoError(t, err, age)
		assert.Equal(t, strings.TrimSpace(age), animal.Age)
	}
}

func TestCreateListingRemovesBlobsWhenWriteFails(t *testing.T) {
	f := newFixture()
	_, id := f.addUser("test@example.com")
	f.blobs.failAfter = 1

	_, _, err := f.animals.CreateListing(context.Background(), id, validFields(), []Upload{
		{Filename: "a.jpg", Data: []byte("a")},
		{Filename: "b.jpg", Data: []byte("b")},
	})
	require.ErrorIs(t, err, ErrStorageUnavailable)

	assert.Zero(t, f.blobs.count())
	assert.Empty(t, f.db.animals)
	assert.Empty(t, f.db.photos)
}

func TestCreateListingRemovesBlobsWhenInsertFails(t *testing.T) {
	f := newFixture()
	_, id := f.addUser("test@example.com")
	f.db.failWrite = errors.New("connection reset")

	_, _, err := f.animals.CreateListing(context.Background(), id, validFields(), []Upload{
		{Filename: "a.jpg", Data: []byte("a")},
	})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Zero(t, f.blobs.count())
	assert.Empty(t, f.invalidator.all())
}

func TestGetListingIsRepeatable(t *testing.T) {
	f := newFixture()
	_, id := f.addUser("test@example.com")
	ctx := context.Background()
	created, _, err := f.animals.CreateListing(ctx, id, validFields(), nil)
	require.NoError(t, err)

	first, err := f.animals.GetListing(ctx, created.ID)
	require.NoError(t, err)
	second, err := f.animals.GetListing(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Description, second.Description)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.animals.GetListing(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetListingDoesNotCacheRowChangedMidRead(t *testing.T) {
	f := newFixture()
	_, ownerID := f.addUser("owner@example.com")
	ctx := context.Background()
	created, _, err := f.animals.CreateListing(ctx, ownerID, validFields(), nil)
	require.NoError(t, err)

	changed := validFields()
	changed.Description = "Вече е осиновена"
	var once sync.Once
	f.db.afterGet = func() {
		once.Do(func() {
			_, err := f.animals.UpdateListing(ctx, created.ID, ownerID, changed)
			require.NoError(t, err)
		})
	}

	stale, err := f.animals.GetListing(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Много послушна котка", stale.Description)

	fresh, err := f.animals.GetListing(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Вече е осиновена", fresh.Description)
}

func TestFilter(t *testing.T) {
	f := newFixture()
	_, id := f.addUser("test@example.com")
	ctx := context.Background()

	for _, l := range []struct{ typ, city string }{
		{"cat", "Sofia"},
		{"dog", "Plovdiv"},
		{"cat", "Plovdiv"},
	} {
		fields := validFields()
		fields.Type, fields.City = l.typ, l.city
		_, _, err := f.animals.CreateListing(ctx, id, fields, nil)
		require.NoError(t, err)
	}

	got, err := f.animals.Filter(ctx, types.AnimalFilter{Type: "cat", City: "Plovdiv"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cat", got[0].Type)
	assert.Equal(t, "Plovdiv", got[0].City)

	got, err = f.animals.Filter(ctx, types.AnimalFilter{Type: "Cat"})
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := f.animals.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateListingOwnership(t *testing.T) {
	f := newFixture()
	_, ownerID := f.addUser("owner@example.com")
	_, otherID := f.addUser("other@example.com")
	ctx := context.Background()

	created, _, err := f.animals.CreateListing(ctx, ownerID, validFields(), nil)
	require.NoError(t, err)

	changed := validFields()
	changed.Description = "Вече не е толкова послушна"

	_, err = f.animals.UpdateListing(ctx, created.ID, otherID, changed)
	assert.ErrorIs(t, err, ErrForbidden)
	stored, err := f.animals.GetListing(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Много послушна котка", stored.Description)

	_, err = f.animals.UpdateListing(ctx, created.ID, nil, changed)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.animals.UpdateListing(ctx, uuid.New(), ownerID, changed)
	assert.ErrorIs(t, err, ErrNotFound)

	bad := changed
	bad.Age = "21"
	_, err = f.animals.UpdateListing(ctx, created.ID, ownerID, bad)
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := f.animals.UpdateListing(ctx, created.ID, ownerID, changed)
	require.NoError(t, err)
	assert.Equal(t, changed.Description, updated.Description)
	assert.Contains(t, f.invalidator.all(), "/animals/"+created.ID.String())
}

func TestDeleteListingOwnership(t *testing.T) {
	f := newFixture()
	_, ownerID := f.addUser("owner@example.com")
	_, otherID := f.addUser("other@example.com")
	ctx := context.Background()

	created, _, err := f.animals.CreateListing(ctx, ownerID, validFields(), []Upload{
		{Filename: "a.jpg", Data: []byte("a")},
		{Filename: "b.jpg", Data: []byte("b")},
	})
	require.NoError(t, err)

	err = f.animals.DeleteListing(ctx, created.ID, otherID)
	assert.ErrorIs(t, err, ErrForbidden)
	photos, err := f.animals.ListPhotos(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, photos, 2)

	require.NoError(t, f.animals.DeleteListing(ctx, created.ID, ownerID))
	_, err = f.animals.GetListing(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.db.animals)
	assert.Empty(t, f.db.photos)
	assert.Zero(t, f.blobs.count())

	err = f.animals.DeleteListing(ctx, created.ID, ownerID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByOwner(t *testing.T) {
	f := newFixture()
	owner, ownerID := f.addUser("owner@example.com")
	_, otherID := f.addUser("other@example.com")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := f.animals.CreateListing(ctx, ownerID, validFields(), nil)
		require.NoError(t, err)
	}
	_, _, err := f.animals.CreateListing(ctx, otherID, validFields(), nil)
	require.NoError(t, err)

	mine, err := f.animals.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	mine, err = f.animals.ListMine(ctx, otherID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.animals.ListMine(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCleanImagePath(t *testing.T) {
	tests := map[string]string{
		`C:\path\to\uploads\image.jpg`:            "/uploads/image.jpg",
		"/path/to/uploads/image.jpg":              "/uploads/image.jpg",
		"/srv/uploads/old/uploads/x.jpg":          "/uploads/x.jpg",
		"http://minio:9000/adoptly/uploads/x.jpg": "/uploads/x.jpg",
		"":                                        "/placeholder.jpg",
		`images\x.jpg`:                            "images/x.jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanImagePath(in), in)
	}
}
