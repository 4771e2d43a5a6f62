package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps resources in process memory. Used by tests and by
// single-process development setups.
type MemoryBackend struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{store: make(map[string][]byte)}
}

func (m *MemoryBackend) WriteAtomic(ctx context.Context, p string, data []byte) error {
	if err := CheckPath(p); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[p] = cp
	return nil
}

func (m *MemoryBackend) Read(ctx context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[p]; ok {
		return append([]byte(nil), d...), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) List(ctx context.Context, dir string) ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.store))
	for k := range m.store {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	return childrenOf(keys, dir), nil
}

func (m *MemoryBackend) Remove(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, p)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
