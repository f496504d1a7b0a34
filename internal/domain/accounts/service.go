package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"payslip/internal/platform/kv"
)

const (
	usersPrefix       = "apiUsers"
	usersByEmailIndex = "apiUsersByEmail"
	keysIndex         = "apiKeys"
	contactsPrefix    = "users"

	defaultSessionTTL = 24 * time.Hour
)

// Service manages API users, their keys, sessions and contacts. Writes that
// read and rewrite a user record are serialised by mu.
type Service struct {
	store      kv.Store
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time

	mu sync.Mutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func NewService(store kv.Store, sessionSecret string, opts ...Option) *Service {
	s := &Service{
		store:      store,
		secret:     []byte(sessionSecret),
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) CreateUser(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return User{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userIDByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		APIKeys:      []APIKey{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.putUser(ctx, user); err != nil {
		return User{}, err
	}
	if err := s.store.Set(ctx, kv.Key{usersByEmailIndex, email}, user.ID); err != nil {
		return User{}, fmt.Errorf("index user email: %w", err)
	}
	return user, nil
}

func (s *Service) VerifyUser(ctx context.Context, email, password string) (User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.store.Get(ctx, kv.Key{usersPrefix, id}, &user)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (User, error) {
	id, err := s.userIDByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Service) userIDByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", ErrUserNotFound
	}
	var id string
	err := s.store.Get(ctx, kv.Key{usersByEmailIndex, email}, &id)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup user email: %w", err)
	}
	return id, nil
}

func (s *Service) putUser(ctx context.Context, user User) error {
	if err := s.store.Set(ctx, kv.Key{usersPrefix, user.ID}, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
