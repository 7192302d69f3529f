package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-app/gatehouse/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account. The existence probe is an early exit
// only; the insert itself reports shared.ErrEmailTaken when a concurrent
// registration won the race on the unique index.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	count, err := s.repo.CountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth: check existing email: %w", err)
	}
	if count > 0 {
		return nil, shared.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, email, string(hash), fullName)
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			return nil, shared.ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// Authenticate validates email/password credentials. Unknown email and
// wrong password both collapse to shared.ErrInvalidCredentials so the
// response never reveals which emails are registered.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser resolves a user id from a session to its account, with the
// password hash stripped. A session references an id without proving the
// account still exists, so callers must treat any error here as "not
// authenticated" rather than a recoverable fault.
func (s *Service) GetUser(ctx context.Context, id string) (*SafeUser, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Safe(), nil
}
