package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"payslip/internal/platform/kv"
)

const IdempotencyHeader = "Idempotency-Key"

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

type idempotencyRecord struct {
	RequestHash string          `json:"requestHash"`
	Response    json.RawMessage `json:"response"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// IdempotencyStore remembers responses by caller, endpoint and key.
type IdempotencyStore struct {
	store kv.Store
}

func NewIdempotencyStore(store kv.Store) *IdempotencyStore {
	return &IdempotencyStore{store: store}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, scope, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.store == nil || key == "" {
		return nil, false, nil
	}
	var record idempotencyRecord
	err := s.store.Get(ctx, s.key(scope, endpoint, key), &record)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if record.RequestHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return record.Response, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, scope, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.store == nil || key == "" {
		return nil
	}
	return s.store.Set(ctx, s.key(scope, endpoint, key), idempotencyRecord{
		RequestHash: requestHash,
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *IdempotencyStore) key(scope, endpoint, key string) kv.Key {
	if scope == "" {
		scope = "anonymous"
	}
	return kv.Key{"idempotency", RequestHash([]byte(scope)), endpoint, RequestHash([]byte(key))}
}
