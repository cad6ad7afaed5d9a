package account

import (
	"context"
	"sync"

	"github.com/vpanel/economy-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing.
// The FailSaves switch simulates durable-write outages.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]model.Account

	// FailSaves, when non-nil, is consulted before each Save; a non-nil
	// return is surfaced as the save error.
	FailSaves func(userID int64) error
}

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]model.Account)}
}

// Seed inserts or replaces an account.
func (s *MemoryStore) Seed(acct model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	if a.ExpiresAt != nil {
		exp := *a.ExpiresAt
		a.ExpiresAt = &exp
	}
	return &a, nil
}

func (s *MemoryStore) Save(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves != nil {
		if err := s.FailSaves(acct.ID); err != nil {
			return err
		}
	}
	if _, ok := s.accounts[acct.ID]; !ok {
		return model.ErrAccountNotFound
	}
	a := *acct
	if acct.ExpiresAt != nil {
		exp := *acct.ExpiresAt
		a.ExpiresAt = &exp
	}
	s.accounts[acct.ID] = a
	return nil
}
