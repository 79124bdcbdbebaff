package store

import (
	"context"
	"database/sql"

	"github.com/adoptly/apiserver/types"
	"github.com/google/uuid"
)

const photoColumns = `id, title, src, animal_id, created_at, updated_at`

// PhotoRepository handles persistence for listing photos.
type PhotoRepository struct {
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

func (r *PhotoRepository) ListByAnimal(ctx context.Context, animalID uuid.UUID) ([]types.Photo, error) {
	const query = `SELECT ` + photoColumns + ` FROM photos WHERE animal_id = $1 ORDER BY created_at, id`
	return queryPhotos(ctx, r.db, query, animalID)
}

func insertPhoto(ctx context.Context, q querier, photo types.Photo) error {
	const query = `
		INSERT INTO photos (id, title, src, animal_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.ExecContext(
		ctx,
		query,
		photo.ID,
		photo.Title,
		photo.Src,
		photo.AnimalID,
		photo.CreatedAt,
		photo.UpdatedAt,
	)
	return err
}

func queryPhotos(ctx context.Context, q querier, query string, args ...any) ([]types.Photo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := make([]types.Photo, 0)
	for rows.Next() {
		var photo types.Photo
		if err := rows.Scan(
			&photo.ID,
			&photo.Title,
			&photo.Src,
			&photo.AnimalID,
			&photo.CreatedAt,
			&photo.UpdatedAt,
		); err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return photos, nil
}
