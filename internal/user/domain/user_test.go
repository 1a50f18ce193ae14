package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name  string
		user  User
		field string
	}{
		{"valid", User{Email: "a@example.com", ExternalID: "auth0|abc"}, ""},
		{"missing email", User{ExternalID: "auth0|abc"}, FieldEmail},
		{"invalid email", User{Email: "not-an-email", ExternalID: "auth0|abc"}, FieldEmail},
		{"long email", User{Email: strings.Repeat("a", 95) + "@example.com", ExternalID: "auth0|abc"}, FieldEmail},
		{"missing external id", User{Email: "a@example.com"}, FieldExternalID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestUser_Normalize(t *testing.T) {
	u := User{Email: "  a@example.com ", ExternalID: " auth0|abc\n"}
	u.Normalize()
	if u.Email != "a@example.com" || u.ExternalID != "auth0|abc" {
		t.Errorf("Normalize = %+v", u)
	}
}

func TestIsUniquenessViolation(t *testing.T) {
	err := fmt.Errorf("create: %w", &UniquenessViolation{Field: FieldExternalID})
	if !IsUniquenessViolation(err, FieldExternalID) {
		t.Error("wrapped external_id violation not detected")
	}
	if IsUniquenessViolation(err, FieldEmail) {
		t.Error("external_id violation reported as email")
	}
	if IsUniquenessViolation(errors.New("boom"), FieldEmail) {
		t.Error("plain error reported as violation")
	}
}
