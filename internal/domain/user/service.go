package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors for account operations.
var (
	ErrNotFound           = fmt.Errorf("user not found")
	ErrEmailTaken         = fmt.Errorf("email already registered")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
)

// RegisterRequest holds the input for creating an account. Field validation
// (email shape, password strength, postal code, age bounds) happens at the
// transport layer; the service enforces uniqueness and hashing.
type RegisterRequest struct {
	Email      string
	Password   string
	FullName   string
	PostalCode string
	BirthDate  time.Time
}

// Service encapsulates account registration and authentication.
type Service struct {
	users Repository
	now   func() time.Time
}

// NewService creates a user Service backed by the given repository.
func NewService(users Repository) *Service {
	return &Service{users: users, now: time.Now}
}

// Register creates a new account with a bcrypt-hashed password. Emails are
// matched case-insensitively and must be unique.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		PostalCode:   req.PostalCode,
		BirthDate:    req.BirthDate,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Get returns the account with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.Get(ctx, id)
}

// Authenticate verifies the email/password pair and returns the account.
// Lookup misses and password mismatches both map to ErrInvalidCredentials so
// callers cannot probe which emails exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
