package services

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/adoptly/apiserver/types"
)

const (
	minAge = 0
	maxAge = 20

	minUsernameLen = 3
	minPasswordLen = 8
	maxPasswordLen = 25
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// ListingFields is the submitted content of a listing.
type ListingFields struct {
	Description string
	Type        string
	Age         string
	City        string
	Gender      string
}

func (f ListingFields) normalize() ListingFields {
	return ListingFields{
		Description: strings.TrimSpace(f.Description),
		Type:        strings.TrimSpace(f.Type),
		Age:         strings.TrimSpace(f.Age),
		City:        strings.TrimSpace(f.City),
		Gender:      strings.TrimSpace(f.Gender),
	}
}

func (f ListingFields) validate() error {
	fields := map[string]string{}
	if f.Description == "" {
		fields["description"] = "required"
	}
	if f.Type == "" {
		fields["type"] = "required"
	}
	if f.City == "" {
		fields["city"] = "required"
	}
	switch {
	case f.Age == "":
		fields["age"] = "required"
	default:
		age, err := strconv.Atoi(f.Age)
		if err != nil {
			fields["age"] = "must be a whole number"
		} else if age < minAge || age > maxAge {
			fields["age"] = "must be between 0 and 20"
		}
	}
	switch f.Gender {
	case "":
		fields["gender"] = "required"
	case types.GenderMale, types.GenderFemale:
	default:
		fields["gender"] = "must be " + types.GenderMale + " or " + types.GenderFemale
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// UserFields is the submitted content of an account. Nil pointers are left
// unchanged on update.
type UserFields struct {
	Username *string
	Email    *string
	Phone    *string
	Password *string
	Image    *string
}

func validateUsername(fields map[string]string, username string) {
	if utf8.RuneCountInString(username) < minUsernameLen {
		fields["username"] = "must be at least 3 characters"
	}
}

func validateEmail(fields map[string]string, email string) {
	if email == "" {
		fields["email"] = "required"
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "invalid email"
	}
}

func validatePhone(fields map[string]string, phone string) {
	if !phonePattern.MatchString(phone) {
		fields["phone"] = "must be 8 to 15 digits"
	}
}

func validatePassword(fields map[string]string, password string) {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen || n > maxPasswordLen {
		fields["password"] = "must be 8 to 25 characters"
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
