package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. State does not survive a
// restart; it backs tests and the "memory" driver.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) PutIf(_ context.Context, key string, prev, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if ok != (prev != nil) || !bytes.Equal(cur, prev) {
		return ErrConflict
	}
	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
