package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryManager implements Manager in-process. Used for testing and
// single-node development. TTLs are honored against the Now clock so
// tests can exercise expiry without sleeping.
type MemoryManager struct {
	mu    sync.Mutex
	held  map[string]memLock
	pause time.Duration

	// Now supplies the clock for TTL checks. Defaults to time.Now.
	Now func() time.Time
}

type memLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryManager creates an in-memory lock manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		held:  make(map[string]memLock),
		pause: 5 * time.Millisecond,
		Now:   time.Now,
	}
}

// tryAcquire attempts a single non-blocking acquisition.
func (m *MemoryManager) tryAcquire(subject, token string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.held[subject]; ok && m.Now().Before(cur.expiresAt) {
		return false
	}
	m.held[subject] = memLock{token: token, expiresAt: m.Now().Add(ttl)}
	return true
}

func (m *MemoryManager) Acquire(ctx context.Context, subject string, maxWait, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(maxWait)

	for {
		if m.tryAcquire(subject, token, ttl) {
			return &Lock{Subject: subject, Token: token}, nil
		}
		if time.Now().Add(m.pause).After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pause):
		}
	}
}

func (m *MemoryManager) Release(_ context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.held[l.Subject]; ok && cur.token == l.Token {
		delete(m.held, l.Subject)
	}
	return nil
}
