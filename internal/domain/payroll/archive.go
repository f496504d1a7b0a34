package payroll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payslip/internal/platform/kv"
)

const (
	payslipsPrefix     = "payslips"
	userPayslipsPrefix = "user-payslips"
)

// Record is a stored payslip.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Data      Payslip   `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sealer encrypts records before they reach the store.
type Sealer interface {
	Configured() bool
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type sealedValue struct {
	Sealed []byte `json:"sealed"`
}

type Archive struct {
	store  kv.Store
	sealer Sealer
	now    func() time.Time
}

func NewArchive(store kv.Store, sealer Sealer) *Archive {
	return &Archive{store: store, sealer: sealer, now: time.Now}
}

// WithClock overrides the archive clock.
func (a *Archive) WithClock(now func() time.Time) *Archive {
	a.now = now
	return a
}

// Save writes the payslip under its id and under the owning user.
func (a *Archive) Save(ctx context.Context, userID string, data Payslip) (Record, error) {
	userID = normalizeUserID(userID)
	if userID == "" {
		return Record{}, &ValidationError{Fields: []string{"userId"}}
	}
	now := a.now().UTC()
	record := Record{
		ID:        newPayslipID(now),
		UserID:    userID,
		Data:      data,
		CreatedAt: now,
	}
	value, err := a.encode(record)
	if err != nil {
		return Record{}, err
	}
	if err := a.store.Set(ctx, kv.Key{payslipsPrefix, record.ID}, value); err != nil {
		return Record{}, fmt.Errorf("save payslip: %w", err)
	}
	if err := a.store.Set(ctx, kv.Key{userPayslipsPrefix, userID, record.ID}, value); err != nil {
		return Record{}, fmt.Errorf("save user payslip: %w", err)
	}
	return record, nil
}

func (a *Archive) Get(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrPayslipNotFound
	}
	var raw json.RawMessage
	err := a.store.Get(ctx, kv.Key{payslipsPrefix, id}, &raw)
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return Record{}, ErrPayslipNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get payslip: %w", err)
	}
	return a.decode(raw)
}

// ListByUser returns the user's payslips newest first.
func (a *Archive) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	userID = normalizeUserID(userID)
	if userID == "" {
		return nil, &ValidationError{Fields: []string{"userId"}}
	}
	records, err := a.list(ctx, kv.Key{userPayslipsPrefix, userID})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(records)
	return records, nil
}

// normalizeUserID matches the email normalisation used for contacts and
// web sessions, so history lookups find payslips saved in any letter case.
func normalizeUserID(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

// ListAll returns every payslip newest first.
func (a *Archive) ListAll(ctx context.Context) ([]Record, error) {
	records, err := a.list(ctx, kv.Key{payslipsPrefix})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(records)
	return records, nil
}

func (a *Archive) Count(ctx context.Context) (int, error) {
	entries, err := a.store.List(ctx, kv.Key{payslipsPrefix})
	if err != nil {
		return 0, fmt.Errorf("count payslips: %w", err)
	}
	return len(entries), nil
}

func (a *Archive) list(ctx context.Context, prefix kv.Key) ([]Record, error) {
	entries, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list payslips: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		record, err := a.decode(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("decode payslip %s: %w", entry.Key, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (a *Archive) encode(record Record) (any, error) {
	plain, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if a.sealer == nil || !a.sealer.Configured() {
		return json.RawMessage(plain), nil
	}
	sealed, err := a.sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("seal payslip: %w", err)
	}
	return sealedValue{Sealed: sealed}, nil
}

func (a *Archive) decode(raw []byte) (Record, error) {
	var envelope sealedValue
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Sealed) > 0 {
		if a.sealer == nil || !a.sealer.Configured() {
			return Record{}, fmt.Errorf("payslip is encrypted but no key is configured")
		}
		plain, err := a.sealer.Open(envelope.Sealed)
		if err != nil {
			return Record{}, fmt.Errorf("open payslip: %w", err)
		}
		raw = plain
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, err
	}
	return record, nil
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// newPayslipID is the first 16 hex characters of sha256(uuid + unix nanos).
func newPayslipID(now time.Time) string {
	sum := sha256.Sum256([]byte(uuid.NewString() + strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])[:16]
}
