package store

import (
	"context"
	"sync"
	"time"

	"github.com/sweetpotato0/queryweave/cache"
)

// InMemoryStore implements cache.Cache using a TTL-aware map. Expired entries
// are reaped lazily on read and opportunistically on write.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value    []byte
	expiry   time.Time
	noExpiry bool
}

// NewInMemoryStore creates an empty in-memory cache store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the value stored under key, or cache.ErrMiss.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, cache.ErrMiss
	}
	if !entry.noExpiry && time.Now().After(entry.expiry) {
		s.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := s.entries[key]; ok && !cur.noExpiry && time.Now().After(cur.expiry) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, cache.ErrMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key. A zero or negative ttl means no expiration.
func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored, noExpiry: ttl <= 0}
	if ttl > 0 {
		entry.expiry = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries, counting not-yet-reaped expired ones.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
}
