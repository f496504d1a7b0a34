package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"payslip/internal/platform/kv"
)

// SaveContact stores or replaces the contact keyed by email.
func (s *Service) SaveContact(ctx context.Context, name, email, phone string) (Contact, error) {
	contact := Contact{
		Name:  strings.TrimSpace(name),
		Email: normalizeEmail(email),
		Phone: strings.TrimSpace(phone),
	}
	if contact.Name == "" || contact.Email == "" || contact.Phone == "" {
		return Contact{}, fmt.Errorf("%w: name, email and phone are required", ErrInvalidInput)
	}
	contact.CreatedAt = s.now().UTC()
	if err := s.store.Set(ctx, kv.Key{contactsPrefix, contact.Email}, contact); err != nil {
		return Contact{}, fmt.Errorf("save contact: %w", err)
	}
	return contact, nil
}

func (s *Service) GetContact(ctx context.Context, email string) (Contact, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Contact{}, ErrContactNotFound
	}
	var contact Contact
	err := s.store.Get(ctx, kv.Key{contactsPrefix, email}, &contact)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return Contact{}, ErrContactNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (s *Service) ListContacts(ctx context.Context) ([]Contact, error) {
	entries, err := s.store.List(ctx, kv.Key{contactsPrefix})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(entries))
	for _, entry := range entries {
		var c Contact
		if err := entry.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode contact %s: %w", entry.Key, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
