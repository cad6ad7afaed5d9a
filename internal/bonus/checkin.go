// Package bonus implements the daily check-in: once per calendar day a
// user claims a small random traffic grant. The once-per-day rule is a
// ledger marker that expires at local midnight.
package bonus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
)

// Check-in grant bounds in MB.
const (
	minGrantMB = 100
	maxGrantMB = 500
)

const bytesPerMB = int64(1024 * 1024)

// Engine hands out the daily check-in grant.
type Engine struct {
	locks   lock.Manager
	mutator *account.Mutator
	ledger  ledger.Store
	src     rng.Source

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// New creates a check-in engine.
func New(locks lock.Manager, mutator *account.Mutator, led ledger.Store, src rng.Source) *Engine {
	return &Engine{locks: locks, mutator: mutator, ledger: led, src: src, Now: time.Now}
}

// CheckIn claims today's grant for the user and returns its size in MB.
// The marker is written before the grant and rolled back if the grant
// fails, so a durable-store outage never burns the day's claim.
func (e *Engine) CheckIn(ctx context.Context, userID int64) (int64, error) {
	l, err := e.locks.Acquire(ctx, lock.UserSubject(userID), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return 0, model.ErrBusy
		}
		return 0, err
	}
	defer e.locks.Release(ctx, l)

	now := e.Now()
	key := ledger.CheckinKey(userID, ledger.DateOf(now))
	_, claimed, err := e.ledger.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("bonus: read marker: %w", err)
	}
	if claimed {
		return 0, model.ErrAlreadyCheckedIn
	}

	grantMB := int64(rng.Roll(e.src, minGrantMB, maxGrantMB))
	if err := e.ledger.Put(ctx, key, []byte("1"), ledger.MidnightTTL(now)); err != nil {
		return 0, fmt.Errorf("bonus: write marker: %w", err)
	}

	if _, err := e.mutator.Apply(ctx, userID, model.Delta{GrantBytes: grantMB * bytesPerMB}); err != nil {
		if derr := e.ledger.Delete(ctx, key); derr != nil {
			slog.Error("check-in marker rollback failed", "user", userID, "err", derr)
		}
		return 0, err
	}

	slog.Info("check-in claimed", "user", userID, "grant_mb", grantMB)
	return grantMB, nil
}

// CheckedIn reports whether the user already claimed today's grant.
func (e *Engine) CheckedIn(ctx context.Context, userID int64) (bool, error) {
	key := ledger.CheckinKey(userID, ledger.DateOf(e.Now()))
	_, claimed, err := e.ledger.Get(ctx, key)
	return claimed, err
}
