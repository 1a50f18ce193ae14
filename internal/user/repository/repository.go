package repository

import (
	"context"

	"identity-sync/internal/user/domain"
)

// Repository defines persistence for users. Uniqueness of email and external_id is enforced here,
// not by callers: Create and Update return *domain.UniquenessViolation on a collision.
type Repository interface {
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByExternalID returns the user linked to the provider subject, or nil if not found.
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	// GetByEmail returns the user with the given email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// List returns all users ordered by id.
	List(ctx context.Context) ([]*domain.User, error)
	// Create inserts u and sets its ID and CreatedAt.
	Create(ctx context.Context, u *domain.User) error
	// Update changes the email of user id. Returns *domain.NotFoundError if id does not exist.
	Update(ctx context.Context, id int64, email string) (*domain.User, error)
	// Delete removes user id. Returns *domain.NotFoundError if id does not exist.
	Delete(ctx context.Context, id int64) error
}
