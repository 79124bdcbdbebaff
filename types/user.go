package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an Adoptly account.
// Username, email and phone are each unique across all users.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique public name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the unique login address of the user.
	Email string `json:"email" db:"email"`

	// Phone is the unique contact number shown on the user's listings.
	Phone string `json:"phone" db:"phone"`

	// Image is an optional avatar URL.
	Image string `json:"image,omitempty" db:"image"`

	// IsAdmin grants access to the user administration endpoints.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
