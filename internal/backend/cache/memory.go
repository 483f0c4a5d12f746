package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache keeps images in process memory. A zero TTL keeps entries forever.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return slices.Clone(entry.data), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{data: slices.Clone(data)}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.entries[key] = entry
	return nil
}

// Len reports the number of stored entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}
