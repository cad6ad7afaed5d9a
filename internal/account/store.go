// Package account owns the durable side of the economy engine: loading
// a user's balance state, applying validated deltas, and persisting the
// result. The Mutator is the only component allowed to write balance
// fields; everything else goes through it.
package account

import (
	"context"

	"github.com/vpanel/economy-engine/internal/model"
)

// Store is the durable account persistence contract. PostgreSQL is the
// source of truth in production; the memory implementation backs tests.
type Store interface {
	// Load returns the user's current balance state, or
	// model.ErrAccountNotFound when the user no longer exists.
	Load(ctx context.Context, userID int64) (*model.Account, error)

	// Save persists the balance fields of acct. It never creates users;
	// a vanished row surfaces as model.ErrAccountNotFound.
	Save(ctx context.Context, acct *model.Account) error
}
