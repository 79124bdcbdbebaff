package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
)

const userColumns = `id, username, email, phone, image, is_admin, password_hash, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, username, email, phone, image, is_admin, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.Phone,
		user.Image,
		user.IsAdmin,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			phone = $3,
			image = $4,
			password_hash = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING ` + userColumns
	updated, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Phone,
		user.Image,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	))
	if err != nil {
		return types.User{}, err
	}
	return updated, nil
}

// Delete removes the user together with every listing the user owns and
// the photos of those listings. The ids of the deleted listings and the
// deleted photos are returned so callers can clean up after them.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, []types.Photo, error) {
	var (
		animalIDs []uuid.UUID
		photos    []types.Photo
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		ids, deleted, err := deleteListingsByOwner(ctx, tx, id)
		if err != nil {
			return err
		}
		animalIDs, photos = ids, deleted
		return execExpectOne(ctx, tx, `DELETE FROM users WHERE id = $1`, id)
	})
	if err != nil {
		return nil, nil, mapError(err)
	}
	return animalIDs, photos, nil
}

func scanUser(row scanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.Image,
		&user.IsAdmin,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}
