package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arula-ai/commerce-api/internal/domain/user"
)

const (
	createUserSQL = `INSERT INTO users (id, email, password_hash, full_name, postal_code, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getUserSQL = `SELECT id, email, password_hash, full_name, postal_code, birth_date, created_at
		FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT id, email, password_hash, full_name, postal_code, birth_date, created_at
		FROM users WHERE email = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create persists a new user account.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, createUserSQL,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.PostalCode, u.BirthDate, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.ID, err)
	}
	return nil
}

// Get returns the user with the given ID, or user.ErrNotFound.
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.queryOne(ctx, getUserSQL, id)
}

// GetByEmail returns the user with the given email, or user.ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.queryOne(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) queryOne(ctx context.Context, sql, arg string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying user %q: %w", arg, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("querying user %q: %w", arg, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName,
		&u.PostalCode, &u.BirthDate, &u.CreatedAt,
	)
	return u, err
}
