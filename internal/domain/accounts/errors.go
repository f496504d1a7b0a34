package accounts

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrKeyNotFound        = errors.New("api key not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrContactNotFound    = errors.New("contact not found")
)
