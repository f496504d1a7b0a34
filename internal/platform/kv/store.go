package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("kv: key not found")
	ErrInvalidKey = errors.New("kv: invalid key")
)

// separator joins key components. It is a control character that never
// appears in ids, emails or names and is accepted by every backend.
const separator = "\x1f"

// Key is an ordered tuple of path components such as {"payslips", id}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) encode() (string, error) {
	if len(k) == 0 {
		return "", ErrInvalidKey
	}
	for _, part := range k {
		if part == "" || strings.Contains(part, separator) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return strings.Join(k, separator), nil
}

// encodePrefix returns the encoded prefix including a trailing separator so
// that {"users"} never matches {"usersArchive", ...}.
func (k Key) encodePrefix() (string, error) {
	if len(k) == 0 {
		return "", nil
	}
	encoded, err := k.encode()
	if err != nil {
		return "", err
	}
	return encoded + separator, nil
}

func decodeKey(raw string) Key {
	return Key(strings.Split(raw, separator))
}

type Entry struct {
	Key   Key
	Value json.RawMessage
}

// Decode unmarshals the entry value into out.
func (e Entry) Decode(out any) error {
	return json.Unmarshal(e.Value, out)
}

// Store is the persistence capability used by the domain packages. Values are
// JSON documents. List returns entries in ascending key order.
type Store interface {
	Get(ctx context.Context, key Key, out any) error
	Set(ctx context.Context, key Key, value any) error
	Delete(ctx context.Context, key Key) error
	List(ctx context.Context, prefix Key) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

func marshal(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("kv: invalid raw json value")
		}
		return raw, nil
	}
	return json.Marshal(value)
}

func unmarshal(data []byte, out any) error {
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, out)
}
