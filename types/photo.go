package types

import (
	"time"

	"github.com/google/uuid"
)

// Photo is an image attached to a listing.
type Photo struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Title is the stored file name.
	Title string `json:"title,omitempty" db:"title"`

	// Src is the location returned by the blob store. Handlers normalise it
	// to its public "/uploads/<file>" form before responding.
	Src string `json:"src" db:"src"`

	// AnimalID references the owning listing.
	AnimalID uuid.UUID `json:"animal_id" db:"animal_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
