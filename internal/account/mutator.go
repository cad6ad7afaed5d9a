package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vpanel/economy-engine/internal/model"
)

// Mutator applies validated deltas to account balances. Callers must
// hold the user's lock for the full read-validate-write span. The
// mutator re-reads persisted state immediately before applying and
// never trusts a caller-supplied snapshot.
type Mutator struct {
	store Store

	// Now supplies the clock for expiry math. Defaults to time.Now.
	Now func() time.Time
}

// NewMutator creates a mutator over the durable store.
func NewMutator(store Store) *Mutator {
	return &Mutator{store: store, Now: time.Now}
}

// Apply re-reads the account, applies delta, and persists the result.
// On any failure no partial state change is observable.
//
// A delta that both consumes and grants is combined: consumption is
// added to used-upload and the grant is credited against it in the same
// mutation, with any grant excess beyond zero moved to quota. A pure
// grant credits quota directly, so the credit survives a periodic usage
// reset. Both shapes change the remaining balance by exactly the delta
// amounts and the used counter never goes negative.
func (m *Mutator) Apply(ctx context.Context, userID int64, delta model.Delta) (*model.Account, error) {
	acct, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if delta.ResetUsage {
		acct.UsedUpload = 0
		acct.UsedDownload = 0
	}

	if delta.ConsumeBytes > 0 {
		if acct.UsedBytes()+delta.ConsumeBytes > acct.QuotaBytes {
			return nil, model.ErrInsufficientBalance
		}
		used := acct.UsedUpload + delta.ConsumeBytes
		if delta.GrantBytes <= used {
			used -= delta.GrantBytes
		} else {
			acct.QuotaBytes += delta.GrantBytes - used
			used = 0
		}
		acct.UsedUpload = used
	} else if delta.GrantBytes > 0 {
		acct.QuotaBytes += delta.GrantBytes
	}

	if delta.ShiftExpirySec != 0 {
		if acct.ExpiresAt == nil {
			return nil, model.ErrNotEligible
		}
		shifted := *acct.ExpiresAt + delta.ShiftExpirySec
		if delta.ShiftExpirySec < 0 && shifted < m.Now().Unix() {
			return nil, model.ErrInsufficientBalance
		}
		acct.ExpiresAt = &shifted
	}

	if err := m.store.Save(ctx, acct); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, err
		}
		perr := &model.PersistenceError{Op: "apply delta", UserID: userID, Err: err}
		slog.Error("account mutation not persisted",
			"user", userID,
			"consume", delta.ConsumeBytes,
			"grant", delta.GrantBytes,
			"shift_sec", delta.ShiftExpirySec,
			"err", err,
		)
		return nil, perr
	}
	return acct, nil
}
