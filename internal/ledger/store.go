// Package ledger defines the ephemeral key/value store backing pool
// totals, participant sets, daily-play markers, and the recent-win feed.
// Implementations include Redis (production) and in-memory (for testing,
// with a controllable clock). TTL expiry is a correctness mechanism: it
// bounds how long a stale pool or marker can exist if a draw is skipped.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the expiring KV contract. Values are opaque structured
// records serialized as JSON; the store itself is agnostic to shape.
type Store interface {
	// Get returns the value at key, or found=false when absent/expired.
	Get(ctx context.Context, key string) (val []byte, found bool, err error)

	// Put writes key with a TTL. ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// GetDelete reads and removes key as a single atomic operation. This
	// is the draw's serialization point against in-flight joins.
	GetDelete(ctx context.Context, key string) (val []byte, found bool, err error)
}

// GetJSON reads key and unmarshals it into out. Returns found=false when
// the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("ledger: decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals v and writes it at key with a TTL.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data, ttl)
}

// GetDeleteJSON atomically reads-and-removes key, unmarshaling into out.
func GetDeleteJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	data, found, err := s.GetDelete(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("ledger: decode %s: %w", key, err)
	}
	return true, nil
}
