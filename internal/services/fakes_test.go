package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/cache"
	"github.com/adoptly/apiserver/internal/store"
	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// memoryDB backs the animal, photo and user fakes with shared state so
// cascades can be observed.
type memoryDB struct {
	mu        sync.Mutex
	users     map[uuid.UUID]types.User
	animals   map[uuid.UUID]types.Animal
	photos    map[uuid.UUID]types.Photo
	failWrite error
	seq       int

	// afterGet runs once a listing row has been read, outside the lock.
	afterGet func()
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		users:   map[uuid.UUID]types.User{},
		animals: map[uuid.UUID]types.Animal{},
		photos:  map[uuid.UUID]types.Photo{},
	}
}

// tick returns strictly increasing timestamps so ordering is stable.
func (m *memoryDB) tick() time.Time {
	m.seq++
	return time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
}

type memoryAnimals struct{ db *memoryDB }

func (r memoryAnimals) Get(ctx context.Context, id uuid.UUID) (types.Animal, error) {
	r.db.mu.Lock()
	a, ok := r.db.animals[id]
	hook := r.db.afterGet
	r.db.mu.Unlock()
	if !ok {
		return types.Animal{}, store.ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return a, nil
}

func (r memoryAnimals) List(ctx context.Context, f types.AnimalFilter) ([]types.Animal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Animal, 0)
	for _, a := range r.db.animals {
		if (f.Type == "" || a.Type == f.Type) && (f.City == "" || a.City == f.City) && (f.Gender == "" || a.Gender == f.Gender) {
			out = append(out, a)
		}
	}
	sortAnimals(out)
	return out, nil
}

func (r memoryAnimals) ListByOwner(ctx context.Context, userID uuid.UUID) ([]types.Animal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Animal, 0)
	for _, a := range r.db.animals {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sortAnimals(out)
	return out, nil
}

func (r memoryAnimals) CreateWithPhotos(ctx context.Context, a types.Animal, photos []types.Photo) (types.Animal, []types.Photo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failWrite != nil {
		return types.Animal{}, nil, r.db.failWrite
	}
	a.ID = uuid.New()
	a.CreatedAt = r.db.tick()
	a.UpdatedAt = a.CreatedAt
	r.db.animals[a.ID] = a
	created := make([]types.Photo, 0, len(photos))
	for _, p := range photos {
		p.ID = uuid.New()
		p.AnimalID = a.ID
		p.CreatedAt = r.db.tick()
		r.db.photos[p.ID] = p
		created = append(created, p)
	}
	return a, created, nil
}

func (r memoryAnimals) UpdateOwned(ctx context.Context, a types.Animal, ownerID uuid.UUID) (types.Animal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	current, ok := r.db.animals[a.ID]
	if !ok || current.UserID != ownerID {
		return types.Animal{}, store.ErrNotFound
	}
	current.Description, current.Type, current.Age, current.City, current.Gender = a.Description, a.Type, a.Age, a.City, a.Gender
	current.UpdatedAt = r.db.tick()
	r.db.animals[a.ID] = current
	return current, nil
}

func (r memoryAnimals) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) ([]types.Photo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	current, ok := r.db.animals[id]
	if !ok || current.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	photos := r.db.deletePhotosLocked(func(p types.Photo) bool { return p.AnimalID == id })
	delete(r.db.animals, id)
	return photos, nil
}

func (m *memoryDB) deletePhotosLocked(match func(types.Photo) bool) []types.Photo {
	out := make([]types.Photo, 0)
	for id, p := range m.photos {
		if match(p) {
			out = append(out, p)
			delete(m.photos, id)
		}
	}
	return out
}

type memoryPhotos struct{ db *memoryDB }

func (r memoryPhotos) ListByAnimal(ctx context.Context, animalID uuid.UUID) ([]types.Photo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Photo, 0)
	for _, p := range r.db.photos {
		if p.AnimalID == animalID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memoryUsers struct{ db *memoryDB }

func (r memoryUsers) find(match func(types.User) bool) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return r.find(func(u types.User) bool { return u.ID == id })
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r memoryUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Username == username })
}

func (r memoryUsers) List(ctx context.Context) ([]types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memoryUsers) Create(ctx context.Context, u types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if existing.Username == u.Username || existing.Email == u.Email || existing.Phone == u.Phone {
			return types.User{}, store.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = r.db.tick()
	u.UpdatedAt = u.CreatedAt
	r.db.users[u.ID] = u
	return u, nil
}

func (r memoryUsers) Update(ctx context.Context, u types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[u.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.db.users {
		if id != u.ID && (existing.Username == u.Username || existing.Email == u.Email || existing.Phone == u.Phone) {
			return types.User{}, store.ErrConflict
		}
	}
	u.UpdatedAt = r.db.tick()
	r.db.users[u.ID] = u
	return u, nil
}

func (r memoryUsers) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, []types.Photo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[id]; !ok {
		return nil, nil, store.ErrNotFound
	}
	owned := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for animalID, a := range r.db.animals {
		if a.UserID == id {
			owned[animalID] = true
			ids = append(ids, animalID)
			delete(r.db.animals, animalID)
		}
	}
	photos := r.db.deletePhotosLocked(func(p types.Photo) bool { return owned[p.AnimalID] })
	delete(r.db.users, id)
	return ids, photos, nil
}

func sortAnimals(animals []types.Animal) {
	sort.Slice(animals, func(i, j int) bool { return animals[i].CreatedAt.Before(animals[j].CreatedAt) })
}

// memoryBlobs records written files. failAfter makes every write after
// that many successful ones fail.
type memoryBlobs struct {
	mu        sync.Mutex
	files     map[string][]byte
	writes    int
	failAfter int
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{files: map[string][]byte{}, failAfter: -1}
}

func (b *memoryBlobs) Write(ctx context.Context, name, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAfter >= 0 && b.writes >= b.failAfter {
		return "", errors.New("disk full")
	}
	b.writes++
	location := `C:\srv\adoptly\public\uploads\` + name
	b.files[location] = data
	return location, nil
}

func (b *memoryBlobs) Remove(ctx context.Context, location string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, location)
	return nil
}

func (b *memoryBlobs) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[`C:\srv\adoptly\public\uploads\`+name]
	return ok
}

func (b *memoryBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

// memoryCache mirrors the Redis cache: evicted keys keep a nil marker that
// reads as a miss and blocks fills.
type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
	hits   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.values[key]
	if !ok || b == nil {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dest)
}

func (c *memoryCache) Fill(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = b
	return nil
}

func (c *memoryCache) Evict(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.values[k] = nil
	}
	return nil
}

// recordingInvalidator records paths and evicts their keys from cache.
type recordingInvalidator struct {
	mu    sync.Mutex
	paths []string
	cache *memoryCache
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	if r.cache != nil {
		_ = r.cache.Evict(ctx, cache.KeysForPath(path)...)
	}
}

func (r *recordingInvalidator) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type fixture struct {
	db          *memoryDB
	blobs       *memoryBlobs
	cache       *memoryCache
	invalidator *recordingInvalidator
	animals     *AnimalService
	users       *UserService
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	db := newMemoryDB()
	listings := newMemoryCache()
	f := &fixture{
		db:          db,
		blobs:       newMemoryBlobs(),
		cache:       listings,
		invalidator: &recordingInvalidator{cache: listings},
	}
	f.animals = NewAnimalService(AnimalServiceDeps{
		Animals:     memoryAnimals{db},
		Photos:      memoryPhotos{db},
		Users:       memoryUsers{db},
		Blobs:       f.blobs,
		Cache:       f.cache,
		Invalidator: f.invalidator,
		Log:         log,
		Timeout:     time.Second,
	})
	f.animals.now = func() time.Time { return time.UnixMilli(1700000000000) }
	f.users = NewUserService(memoryUsers{db}, f.blobs, f.invalidator, log, time.Second)
	return f
}

// addUser stores a user directly and returns it with its session identity.
func (f *fixture) addUser(email string) (types.User, *auth.Identity) {
	name := strings.Split(email, "@")[0]
	u, err := memoryUsers{f.db}.Create(context.Background(), types.User{
		Username: name,
		Email:    email,
		Phone:    "+359" + name,
	})
	if err != nil {
		panic(err)
	}
	return u, &auth.Identity{Email: email}
}

func validFields() ListingFields {
	return ListingFields{
		Description: "Много послушна котка",
		Type:        "Котка",
		Age:         "3",
		City:        "София",
		Gender:      types.GenderMale,
	}
}

func ptr(s string) *string {
	return &s
}
