package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"identity-sync/internal/user/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness rules as the users table.
// Used when no database is configured and in tests.
type MemoryRepository struct {
	mu         sync.Mutex
	nextID     int64
	byID       map[int64]*domain.User
	byExternal map[string]int64
	byEmail    map[string]int64
}

// NewMemoryRepository returns an empty store; ids start at 1.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[int64]*domain.User),
		byExternal: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create checks email before external_id. Postgres checks unique indexes in creation order and
// users_email_key is created first, so a duplicate row violating both reports email.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return &domain.UniquenessViolation{Field: domain.FieldEmail}
	}
	if _, ok := r.byExternal[u.ExternalID]; ok {
		return &domain.UniquenessViolation{Field: domain.FieldExternalID}
	}
	r.nextID++
	u.ID = r.nextID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.byID[u.ID] = clone(u)
	r.byExternal[u.ExternalID] = u.ID
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, id int64, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	if other, ok := r.byEmail[email]; ok && other != id {
		return nil, &domain.UniquenessViolation{Field: domain.FieldEmail}
	}
	delete(r.byEmail, u.Email)
	u.Email = email
	r.byEmail[email] = id
	return clone(u), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return &domain.NotFoundError{ID: id}
	}
	delete(r.byID, id)
	delete(r.byExternal, u.ExternalID)
	delete(r.byEmail, u.Email)
	return nil
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
