package user

import (
	"context"
	"time"
)

// User is a registered customer account. PasswordHash is a bcrypt hash and
// never leaves the service layer.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	PostalCode   string
	BirthDate    time.Time
	CreatedAt    time.Time
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
