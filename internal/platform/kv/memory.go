package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key, out any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	m.mu.RLock()
	value, ok := m.data[encoded]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return unmarshal(value, out)
}

func (m *Memory) Set(_ context.Context, key Key, value any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	payload, err := marshal(value)
	if err != nil {
		return err
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)

	m.mu.Lock()
	m.data[encoded] = stored
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, encoded)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) ([]Entry, error) {
	encodedPrefix, err := prefix.encodePrefix()
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, encodedPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		value := make([]byte, len(m.data[k]))
		copy(value, m.data[k])
		entries = append(entries, Entry{Key: decodeKey(k), Value: value})
	}
	m.mu.RUnlock()
	return entries, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
