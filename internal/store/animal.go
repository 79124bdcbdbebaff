package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
)

const animalColumns = `id, description, type, age, city, gender, user_id, created_at, updated_at`

// AnimalRepository handles persistence for adoption listings.
type AnimalRepository struct {
	db *sql.DB
}

func NewAnimalRepository(db *sql.DB) *AnimalRepository {
	return &AnimalRepository{db: db}
}

func (r *AnimalRepository) Get(ctx context.Context, id uuid.UUID) (types.Animal, error) {
	const query = `SELECT ` + animalColumns + ` FROM animals WHERE id = $1`
	return scanAnimal(r.db.QueryRowContext(ctx, query, id))
}

// List returns the listings matching every non-empty field of filter.
func (r *AnimalRepository) List(ctx context.Context, filter types.AnimalFilter) ([]types.Animal, error) {
	query, args := listQuery(filter)
	return queryAnimals(ctx, r.db, query, args...)
}

func listQuery(filter types.AnimalFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("type", filter.Type)
	add("city", filter.City)
	add("gender", filter.Gender)

	query := `SELECT ` + animalColumns + ` FROM animals`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	return query + ` ORDER BY created_at DESC, id`, args
}

func (r *AnimalRepository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]types.Animal, error) {
	const query = `SELECT ` + animalColumns + ` FROM animals WHERE user_id = $1 ORDER BY created_at DESC, id`
	return queryAnimals(ctx, r.db, query, userID)
}

// CreateWithPhotos inserts the listing and its photos in one transaction.
func (r *AnimalRepository) CreateWithPhotos(ctx context.Context, animal types.Animal, photos []types.Photo) (types.Animal, []types.Photo, error) {
	now := time.Now().UTC()
	if animal.ID == uuid.Nil {
		animal.ID = uuid.New()
	}
	animal.CreatedAt = now
	animal.UpdatedAt = now

	created := make([]types.Photo, 0, len(photos))
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO animals (id, description, type, age, city, gender, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := tx.ExecContext(
			ctx,
			query,
			animal.ID,
			animal.Description,
			animal.Type,
			animal.Age,
			animal.City,
			animal.Gender,
			animal.UserID,
			animal.CreatedAt,
			animal.UpdatedAt,
		); err != nil {
			return err
		}

		for _, photo := range photos {
			if photo.ID == uuid.Nil {
				photo.ID = uuid.New()
			}
			photo.AnimalID = animal.ID
			photo.CreatedAt = now
			photo.UpdatedAt = now
			if err := insertPhoto(ctx, tx, photo); err != nil {
				return err
			}
			created = append(created, photo)
		}
		return nil
	})
	if err != nil {
		return types.Animal{}, nil, mapError(err)
	}
	return animal, created, nil
}

// UpdateOwned rewrites the mutable fields of a listing owned by ownerID.
// ErrNotFound is returned when no listing with that id and owner exists.
func (r *AnimalRepository) UpdateOwned(ctx context.Context, animal types.Animal, ownerID uuid.UUID) (types.Animal, error) {
	const query = `
		UPDATE animals
		SET description = $1,
			type = $2,
			age = $3,
			city = $4,
			gender = $5,
			updated_at = $6
		WHERE id = $7 AND user_id = $8
		RETURNING ` + animalColumns
	return scanAnimal(r.db.QueryRowContext(
		ctx,
		query,
		animal.Description,
		animal.Type,
		animal.Age,
		animal.City,
		animal.Gender,
		time.Now().UTC(),
		animal.ID,
		ownerID,
	))
}

// DeleteOwned removes a listing owned by ownerID along with its photos and
// returns the deleted photos.
func (r *AnimalRepository) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) ([]types.Photo, error) {
	var photos []types.Photo
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const photosQuery = `
			DELETE FROM photos
			WHERE animal_id = (SELECT id FROM animals WHERE id = $1 AND user_id = $2)
			RETURNING ` + photoColumns
		deleted, err := queryPhotos(ctx, tx, photosQuery, id, ownerID)
		if err != nil {
			return err
		}
		photos = deleted

		return execExpectOne(ctx, tx, `DELETE FROM animals WHERE id = $1 AND user_id = $2`, id, ownerID)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return photos, nil
}

func deleteListingsByOwner(ctx context.Context, q querier, userID uuid.UUID) ([]uuid.UUID, []types.Photo, error) {
	const photosQuery = `
		DELETE FROM photos
		WHERE animal_id IN (SELECT id FROM animals WHERE user_id = $1)
		RETURNING ` + photoColumns
	photos, err := queryPhotos(ctx, q, photosQuery, userID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := q.QueryContext(ctx, `DELETE FROM animals WHERE user_id = $1 RETURNING id`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return ids, photos, nil
}

func queryAnimals(ctx context.Context, q querier, query string, args ...any) ([]types.Animal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	animals := make([]types.Animal, 0)
	for rows.Next() {
		animal, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		animals = append(animals, animal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return animals, nil
}

func scanAnimal(row scanner) (types.Animal, error) {
	var animal types.Animal
	err := row.Scan(
		&animal.ID,
		&animal.Description,
		&animal.Type,
		&animal.Age,
		&animal.City,
		&animal.Gender,
		&animal.UserID,
		&animal.CreatedAt,
		&animal.UpdatedAt,
	)
	if err != nil {
		return types.Animal{}, mapError(err)
	}
	return animal, nil
}
