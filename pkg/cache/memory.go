package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Cache. Expired entries are invisible to reads
// and reclaimed by Expire.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		Now:     time.Now,
	}
}

func (m *Memory) Add(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: m.Now().Add(ttl)}
	return nil
}

func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) Take(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	delete(m.entries, key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Expire(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, live or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// live must be called with mu held.
func (m *Memory) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok || !m.Now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}
