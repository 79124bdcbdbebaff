package types

import (
	"time"

	"github.com/google/uuid"
)

// Gender values accepted on a listing.
const (
	GenderMale   = "мъжки"
	GenderFemale = "женски"
)

// Animal is an adoption listing posted by a user.
type Animal struct {
	// ID is the unique identifier of the listing.
	ID uuid.UUID `json:"id" db:"id"`

	// Description is the free-text body of the listing.
	Description string `json:"description" db:"description"`

	// Type is the species or breed, e.g. "Котка".
	Type string `json:"type" db:"type"`

	// Age is kept as submitted; it always parses to an integer in [0, 20].
	Age string `json:"age" db:"age"`

	// City is where the animal can be adopted.
	City string `json:"city" db:"city"`

	// Gender is GenderMale or GenderFemale.
	Gender string `json:"gender" db:"gender"`

	// UserID references the owning user.
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AnimalFilter narrows a listing query. Empty fields are not applied.
type AnimalFilter struct {
	Type   string
	City   string
	Gender string
}

// IsEmpty reports whether no filter field is set.
func (f AnimalFilter) IsEmpty() bool {
	return f.Type == "" && f.City == "" && f.Gender == ""
}
