package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. The Now field makes TTL expiry deterministic in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// Now supplies the clock for TTL checks. Defaults to time.Now.
	Now func() time.Time
}

type memEntry struct {
	val       []byte
	expiresAt time.Time // zero = no expiry
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		Now:     time.Now,
	}
}

// expired must be called with mu held.
func (s *MemoryStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !s.Now().Before(e.expiresAt)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(e) {
		delete(s.entries, key)
		return nil, false, nil
	}
	val := make([]byte, len(e.val))
	copy(val, e.val)
	return val, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memEntry{val: make([]byte, len(val))}
	copy(e.val, val)
	if ttl > 0 {
		e.expiresAt = s.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) GetDelete(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.entries, key)
	if s.expired(e) {
		return nil, false, nil
	}
	return e.val, true, nil
}
