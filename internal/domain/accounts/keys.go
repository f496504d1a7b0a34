package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payslip/internal/platform/kv"
)

func newKeyValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) GenerateAPIKey(ctx context.Context, userID, name string) (APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return APIKey{}, fmt.Errorf("%w: API key name is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateKeyLocked(ctx, userID, name)
}

func (s *Service) generateKeyLocked(ctx context.Context, userID, name string) (APIKey, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return APIKey{}, err
	}
	key := APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		Key:       newKeyValue(),
		CreatedAt: s.now().UTC(),
	}
	user.APIKeys = append(user.APIKeys, key)
	if err := s.putUser(ctx, user); err != nil {
		return APIKey{}, err
	}
	if err := s.store.Set(ctx, kv.Key{keysIndex, key.Key}, user.ID); err != nil {
		return APIKey{}, fmt.Errorf("index api key: %w", err)
	}
	return key, nil
}

// RevokeAPIKey removes the key from the user. Unknown key ids are a no-op.
func (s *Service) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	kept := user.APIKeys[:0]
	var removed []APIKey
	for _, k := range user.APIKeys {
		if k.ID == keyID {
			removed = append(removed, k)
			continue
		}
		kept = append(kept, k)
	}
	if len(removed) == 0 {
		return nil
	}
	user.APIKeys = kept
	if err := s.putUser(ctx, user); err != nil {
		return err
	}
	for _, k := range removed {
		if err := s.store.Delete(ctx, kv.Key{keysIndex, k.Key}); err != nil {
			return fmt.Errorf("remove api key index: %w", err)
		}
	}
	return nil
}

// RecordUsage reports whether key belongs to a user and, if so, bumps its
// usage counter and last-used time.
func (s *Service) RecordUsage(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var userID string
	err := s.store.Get(ctx, kv.Key{keysIndex, key}, &userID)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup api key: %w", err)
	}
	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for i := range user.APIKeys {
		if user.APIKeys[i].Key != key {
			continue
		}
		used := s.now().UTC()
		user.APIKeys[i].LastUsed = &used
		user.APIKeys[i].UsageCount++
		if err := s.putUser(ctx, user); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *Service) UsageStats(ctx context.Context, userID string) (UsageStats, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return UsageStats{}, err
	}
	stats := UsageStats{TotalKeys: len(user.APIKeys), Keys: make([]KeySummary, 0, len(user.APIKeys))}
	for _, k := range user.APIKeys {
		stats.TotalRequests += k.UsageCount
		stats.Keys = append(stats.Keys, KeySummary{
			ID:         k.ID,
			Name:       k.Name,
			MaskedKey:  k.Masked(),
			UsageCount: k.UsageCount,
			LastUsed:   k.LastUsed,
			CreatedAt:  k.CreatedAt,
		})
	}
	return stats, nil
}

// EnsureDefaultKey creates the admin user when missing and returns the key
// used by the service's own pages.
func (s *Service) EnsureDefaultKey(ctx context.Context, adminName, adminEmail, adminPassword string) (string, error) {
	admin, err := s.GetUserByEmail(ctx, adminEmail)
	if errors.Is(err, ErrUserNotFound) {
		admin, err = s.CreateUser(ctx, adminName, adminEmail, adminPassword)
		if err != nil {
			return "", fmt.Errorf("create admin user: %w", err)
		}
	} else if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// re-read under the lock; another caller may have added the key
	admin, err = s.GetUser(ctx, admin.ID)
	if err != nil {
		return "", err
	}
	if existing, ok := admin.findKey(DefaultKeyName); ok {
		return existing.Key, nil
	}
	key, err := s.generateKeyLocked(ctx, admin.ID, DefaultKeyName)
	if err != nil {
		return "", fmt.Errorf("generate default key: %w", err)
	}
	return key.Key, nil
}
