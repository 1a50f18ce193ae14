package service

import (
	"context"

	"identity-sync/internal/telemetry"
	"identity-sync/internal/user/domain"
	"identity-sync/internal/user/repository"
)

// UserService implements the administrative user operations.
type UserService struct {
	repo   repository.Repository
	events telemetry.EventEmitter
}

// NewUserService returns a UserService. events may be nil.
func NewUserService(repo repository.Repository, events telemetry.EventEmitter) *UserService {
	return &UserService{repo: repo, events: events}
}

// Get returns user id or *domain.NotFoundError.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &domain.NotFoundError{ID: id}
	}
	return u, nil
}

// List returns all users ordered by id. Never nil.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

// Create validates and inserts a user. Collisions surface as *domain.UniquenessViolation.
func (s *UserService) Create(ctx context.Context, email, externalID string) (*domain.User, error) {
	u := &domain.User{Email: email, ExternalID: externalID}
	u.Normalize()
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.EventUserCreated, u)
	return u, nil
}

// Update changes the email of user id.
func (s *UserService) Update(ctx context.Context, id int64, email string) (*domain.User, error) {
	u := &domain.User{Email: email}
	u.Normalize()
	if u.Email == "" {
		return nil, &domain.ValidationError{Field: domain.FieldEmail, Message: "email is required"}
	}
	if err := domain.ValidateEmail(u.Email); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, u.Email)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.EventUserUpdated, updated)
	return updated, nil
}

// Delete hard-deletes user id.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(telemetry.EventUserDeleted, "admin").WithUser(id, ""))
	return nil
}

func (s *UserService) emit(ctx context.Context, eventType string, u *domain.User) {
	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(eventType, "admin").WithUser(u.ID, u.ExternalID))
}
