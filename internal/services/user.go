package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 10

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, []types.Photo, error)
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo        UserRepository
	blobs       BlobStore
	invalidator Invalidator
	log         logrus.FieldLogger
	timeout     time.Duration
}

func NewUserService(repo UserRepository, blobs BlobStore, invalidator Invalidator, log logrus.FieldLogger, timeout time.Duration) *UserService {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &UserService{
		repo:        repo,
		blobs:       blobs,
		invalidator: invalidator,
		log:         log,
		timeout:     timeout,
	}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByID(ctx, id)
	return user, storeError("get user", err)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	return user, storeError("get user", err)
}

func (s *UserService) ListUsers(ctx context.Context) ([]types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

// CreateUser registers an account. Username, email, phone and password are
// required.
func (s *UserService) CreateUser(ctx context.Context, fields UserFields) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	username, email, phone := value(trimmed(fields.Username)), value(trimmed(fields.Email)), value(trimmed(fields.Phone))
	password := value(fields.Password)

	invalid := map[string]string{}
	validateUsername(invalid, username)
	validateEmail(invalid, email)
	validatePhone(invalid, phone)
	validatePassword(invalid, password)
	if len(invalid) > 0 {
		return types.User{}, &ValidationError{Fields: invalid}
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return types.User{}, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Phone:        phone,
		Image:        value(trimmed(fields.Image)),
		PasswordHash: hash,
	})
	if err != nil {
		return types.User{}, storeError("create user", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID}).Info("user created")
	return user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords both
// fail with ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		err = storeError("authenticate", err)
		if errors.Is(err, ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrUnauthorized
	}
	return user, nil
}

// UpdateUser applies the non-nil fields to the account.
func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, fields UserFields) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, storeError("update user", err)
	}

	invalid := map[string]string{}
	if v := trimmed(fields.Username); v != nil {
		validateUsername(invalid, *v)
		user.Username = *v
	}
	if v := trimmed(fields.Email); v != nil {
		validateEmail(invalid, *v)
		user.Email = *v
	}
	if v := trimmed(fields.Phone); v != nil {
		validatePhone(invalid, *v)
		user.Phone = *v
	}
	if v := trimmed(fields.Image); v != nil {
		user.Image = *v
	}
	if fields.Password != nil {
		validatePassword(invalid, *fields.Password)
	}
	if len(invalid) > 0 {
		return types.User{}, &ValidationError{Fields: invalid}
	}

	if fields.Password != nil {
		hash, err := hashPassword(*fields.Password)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = hash
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, storeError("update user", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": id}).Info("user updated")
	return updated, nil
}

// DeleteUser removes the account together with its listings and their
// photos.
func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	animalIDs, photos, err := s.repo.Delete(ctx, id)
	if err != nil {
		return storeError("delete user", err)
	}

	locations := make([]string, 0, len(photos))
	for _, photo := range photos {
		locations = append(locations, photo.Src)
	}
	removeBlobs(s.blobs, locations, s.timeout, s.log)

	s.log.WithFields(logrus.Fields{
		"user_id":  id,
		"listings": len(animalIDs),
		"photos":   len(photos),
	}).Info("user deleted")
	for _, animalID := range animalIDs {
		s.invalidator.Invalidate(ctx, "/animals/"+animalID.String())
	}
	s.invalidator.Invalidate(ctx, "/animals")
	return nil
}

// ensureAvailable reports a taken username or email before hashing. The
// unique indexes still decide races.
func (s *UserService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return fmt.Errorf("username %q: %w", username, ErrConflict)
	} else if err = storeError("check username", err); !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return fmt.Errorf("email %q: %w", email, ErrConflict)
	} else if err = storeError("check email", err); !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
