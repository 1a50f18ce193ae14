package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// MaxEmailLength matches the users.email column width.
const MaxEmailLength = 100

// Field names reported by UniquenessViolation.
const (
	FieldEmail      = "email"
	FieldExternalID = "external_id"
)

// User is the local record mirroring an external identity.
// ExternalID is unique and immutable after creation; Email is unique.
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Normalize trims surrounding whitespace from the string fields.
func (u *User) Normalize() {
	u.Email = strings.TrimSpace(u.Email)
	u.ExternalID = strings.TrimSpace(u.ExternalID)
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return &ValidationError{Field: FieldEmail, Message: "email is required"}
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if u.ExternalID == "" {
		return &ValidationError{Field: FieldExternalID, Message: "external_id is required"}
	}
	return nil
}

// ValidateEmail checks length and address syntax.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return &ValidationError{Field: FieldEmail, Message: fmt.Sprintf("email must be at most %d characters", MaxEmailLength)}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: FieldEmail, Message: "email is invalid"}
	}
	return nil
}

// ValidationError reports bad input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UniquenessViolation is returned by the store when a create or update collides with an existing row.
type UniquenessViolation struct {
	Field string
	Err   error
}

func (e *UniquenessViolation) Error() string {
	return fmt.Sprintf("user with this %s already exists", e.Field)
}

func (e *UniquenessViolation) Unwrap() error { return e.Err }

// NotFoundError is returned when an operation addresses a user id that does not exist.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.ID)
}

// IsUniquenessViolation reports whether err is a UniquenessViolation on field.
func IsUniquenessViolation(err error, field string) bool {
	var uv *UniquenessViolation
	return errors.As(err, &uv) && uv.Field == field
}
