package checkpoint

import (
	"context"
	"sync"
)

// Memory keeps entries in process memory. It is useful for watch mode,
// where the same process re-analyzes logs repeatedly.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Load(_ context.Context, key Key) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key.String()]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *Memory) Save(_ context.Context, key Key, entry *Entry) error {
	m.mu.Lock()
	m.entries[key.String()] = *entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key.String())
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Close() error { return nil }
