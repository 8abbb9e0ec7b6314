package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/service-library-go/internal/account/entity"
	"github.com/openshelf/service-library-go/internal/account/repo"
)

// PasswordHasher defines the one-way credential hashing collaborator.
// Abstract so the algorithm can be swapped without touching account flows.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Store is the narrow persistence surface the account service needs.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context, skip, limit int) ([]*entity.User, error)
	Deactivate(ctx context.Context, id int64) (int64, error)
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("incorrect email or password")
)

// Service handles registration and credential verification for members.
type Service struct {
	store  Store
	hasher PasswordHasher
}

func NewService(store Store, hasher PasswordHasher) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{store: store, hasher: hasher}
}

// Create registers a new member. Emails are normalized to lower case and must
// be unique. The plaintext password is hashed and never stored or logged.
func (s *Service) Create(ctx context.Context, name, email, password string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Name:           name,
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, skip, limit int) ([]*entity.User, error) {
	return s.store.List(ctx, skip, limit)
}

// Deactivate disables a member account.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	rows, err := s.store.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Authenticate verifies a presented password against the stored hash.
// Unknown emails, wrong passwords and deactivated accounts all return
// ErrBadCredentials to avoid user enumeration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrBadCredentials
	}
	if !s.hasher.Verify(u.HashedPassword, password) {
		return nil, ErrBadCredentials
	}
	return u, nil
}
