package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openshelf/service-library-go/internal/account/entity"
)

// ErrDuplicateEmail reports a unique-constraint violation on users.email,
// which can still happen under concurrent registration despite the service
// pre-check.
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  hashed_password TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row and fills in the generated id and timestamp.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (name, email, hashed_password, is_active)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, q, u.Name, u.Email, u.HashedPassword, u.IsActive).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetByID returns the user or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT id, name, email, hashed_password, is_active, created_at
		FROM users WHERE id=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user matched by email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT id, name, email, hashed_password, is_active, created_at
		FROM users WHERE email=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns a page of users in insertion order.
func (r *UserRepo) List(ctx context.Context, skip, limit int) ([]*entity.User, error) {
	const q = `SELECT id, name, email, hashed_password, is_active, created_at
		FROM users ORDER BY id OFFSET $1 LIMIT $2`
	users := []*entity.User{}
	if err := r.db.SelectContext(ctx, &users, q, skip, limit); err != nil {
		return nil, err
	}
	return users, nil
}

// Deactivate clears the active flag. Returns the number of rows touched so
// the caller can distinguish a missing user.
func (r *UserRepo) Deactivate(ctx context.Context, id int64) (int64, error) {
	const q = `UPDATE users SET is_active=false WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
