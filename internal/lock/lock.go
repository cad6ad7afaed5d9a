// Package lock provides named, TTL-bounded mutual exclusion keyed by a
// subject id (typically a user id). Every read-validate-write of an
// account or a contest entry runs under the subject's lock; acquisition
// waits a bounded interval and surfaces "busy" instead of hanging.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Lock is a held mutex. It never outlives its TTL; holders release on
// every exit path and release is idempotent, safe even after expiry.
type Lock struct {
	Subject string
	Token   string
}

// Manager is the mutual-exclusion contract.
type Manager interface {
	// Acquire takes the subject's lock, waiting at most maxWait. Returns
	// ErrNotAcquired when the wait elapses; callers map that to a
	// user-visible retryable outcome.
	Acquire(ctx context.Context, subject string, maxWait, ttl time.Duration) (*Lock, error)

	// Release frees the lock if still held by this token. Releasing an
	// expired or already-released lock is a no-op.
	Release(ctx context.Context, l *Lock) error
}

// ErrNotAcquired means the lock stayed busy for the whole bounded wait.
var ErrNotAcquired = fmt.Errorf("lock: not acquired within wait window")

// UserSubject builds the canonical lock subject for a user. A single
// per-user subject serializes wagers, joins, bonuses, and payouts
// against each other.
func UserSubject(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// PoolSubject builds the lock subject guarding one pool document.
func PoolSubject(contestType, date string) string {
	return fmt.Sprintf("pool:%s:%s", contestType, date)
}

// Default acquisition parameters for interactive paths.
const (
	DefaultWait = 2 * time.Second
	DefaultTTL  = 10 * time.Second
)
