package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payslip/internal/platform/kv"
)

// CreateSession stores a session and returns it with the signed cookie value.
func (s *Service) CreateSession(ctx context.Context, kind SessionKind, userID, email string) (Session, string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, "", fmt.Errorf("%w: session email is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	session := Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		UserEmail: email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	token, err := signSessionToken(s.secret, session, now)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session: %w", err)
	}
	if err := s.store.Set(ctx, kv.Key{kind.prefix(), session.ID}, session); err != nil {
		return Session{}, "", fmt.Errorf("save session: %w", err)
	}
	return session, token, nil
}

// LookupSession verifies the token and loads the session. Expired sessions
// are deleted and reported as ErrSessionExpired.
func (s *Service) LookupSession(ctx context.Context, kind SessionKind, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	claims, err := parseSessionToken(s.secret, token)
	if err != nil || claims.Kind != kind {
		return Session{}, ErrSessionNotFound
	}
	var session Session
	err = s.store.Get(ctx, kv.Key{kind.prefix(), claims.ID}, &session)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if session.Expired(s.now()) {
		if err := s.store.Delete(ctx, kv.Key{kind.prefix(), session.ID}); err != nil {
			return Session{}, fmt.Errorf("delete expired session: %w", err)
		}
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// DeleteSession removes the session behind token. Invalid tokens are ignored.
func (s *Service) DeleteSession(ctx context.Context, kind SessionKind, token string) error {
	claims, err := parseSessionToken(s.secret, strings.TrimSpace(token))
	if err != nil || claims.Kind != kind {
		return nil
	}
	return s.store.Delete(ctx, kv.Key{kind.prefix(), claims.ID})
}

// SweepExpiredSessions deletes expired sessions of every kind and returns how
// many were removed.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0
	for _, kind := range []SessionKind{SessionWeb, SessionAPI} {
		entries, err := s.store.List(ctx, kv.Key{kind.prefix()})
		if err != nil {
			return removed, fmt.Errorf("list sessions: %w", err)
		}
		for _, entry := range entries {
			var session Session
			if err := entry.Decode(&session); err != nil {
				continue
			}
			if !session.Expired(now) {
				continue
			}
			if err := s.store.Delete(ctx, entry.Key); err != nil {
				return removed, fmt.Errorf("delete session: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}
