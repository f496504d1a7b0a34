package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"payslip/internal/platform/kv"
)

const eventsPrefix = "audit"

const (
	ActionUserRegistered = "user.registered"
	ActionUserLogin      = "user.login"
	ActionKeyGenerated   = "api_key.generated"
	ActionKeyRevoked     = "api_key.revoked"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	After      json.RawMessage `json:"after,omitempty"`
}

// Service keeps an append-only trail of account actions per actor.
type Service struct {
	store kv.Store
	now   func() time.Time
}

func New(store kv.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, after any) error {
	if s == nil {
		return nil
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return fmt.Errorf("audit actor is required")
	}
	evt := Event{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestID,
		IP:         ip,
		CreatedAt:  s.now().UTC(),
	}
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return err
		}
		evt.After = payload
	}
	// the timestamp component keeps prefix listings in insertion order
	key := kv.Key{eventsPrefix, actorID, evt.CreatedAt.Format("20060102T150405.000000000Z") + "-" + evt.ID}
	if err := s.store.Set(ctx, key, evt); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// List returns the actor's events newest first along with the total count.
func (s *Service) List(ctx context.Context, actorID string, limit, offset int) ([]Event, int, error) {
	entries, err := s.store.List(ctx, kv.Key{eventsPrefix, actorID})
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		var evt Event
		if err := entry.Decode(&evt); err != nil {
			return nil, 0, fmt.Errorf("decode audit event %s: %w", entry.Key, err)
		}
		events = append(events, evt)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	total := len(events)
	if offset >= total {
		return []Event{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return events[offset:end], total, nil
}
