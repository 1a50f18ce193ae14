package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"identity-sync/internal/user/domain"
)

const (
	pgUniqueViolation = "23505"

	constraintEmail      = "users_email_key"
	constraintExternalID = "users_external_id_key"
)

const userColumns = "id, email, external_id, created_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

// GetByExternalID returns the user with the given provider subject, or nil if not found.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE external_id = $1", externalID)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

// List returns every user ordered by id.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts the user in a single statement; the id and created_at are assigned by the database.
// A concurrent insert of the same external_id or email fails with *domain.UniquenessViolation.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (email, external_id, created_at) VALUES ($1, $2, $3) RETURNING id, created_at",
		u.Email, u.ExternalID, createdAt,
	).Scan(&u.ID, &u.CreatedAt)
	return mapError(err)
}

// Update sets the email of user id. external_id is never written.
func (r *PostgresRepository) Update(ctx context.Context, id int64, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		"UPDATE users SET email = $1 WHERE id = $2 RETURNING "+userColumns,
		email, id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, mapError(err)
	}
	return u, nil
}

// Delete hard-deletes user id.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	if err := s.Scan(&u.ID, &u.Email, &u.ExternalID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// mapError converts unique violations into *domain.UniquenessViolation; other errors pass through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintExternalID:
		return &domain.UniquenessViolation{Field: domain.FieldExternalID, Err: err}
	case constraintEmail:
		return &domain.UniquenessViolation{Field: domain.FieldEmail, Err: err}
	default:
		return err
	}
}
