package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider is an in-memory Provider for tests and single-binary
// deployments.
type MemoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryProvider creates an empty in-memory blob store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{objects: make(map[string][]byte)}
}

// Put stores a copy of the blob and returns a memory:// URL.
func (m *MemoryProvider) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

// Get returns the stored blob, for test assertions.
func (m *MemoryProvider) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len reports how many objects are stored.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Close is a no-op.
func (m *MemoryProvider) Close() error { return nil }

var _ Provider = (*MemoryProvider)(nil)

// FailingProvider always fails, for exercising upload error paths in
// tests.
type FailingProvider struct{}

// Put always returns an error.
func (FailingProvider) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	return "", fmt.Errorf("failed to write object %q: store unavailable", key)
}

// Close is a no-op.
func (FailingProvider) Close() error { return nil }
