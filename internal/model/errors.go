package model

import (
	"errors"
	"fmt"
)

// Typed failure taxonomy. Validation failures are returned to callers as
// values, never panics; persistence and settlement failures additionally
// reach the operator channel of the notification dispatcher.
var (
	// ErrBusy means the user's lock was not acquired within the bounded
	// wait. Always retryable by the caller.
	ErrBusy = errors.New("operation in progress, try again")

	// ErrAlreadyParticipated means the daily one-entry rule was hit.
	// Terminal for the day.
	ErrAlreadyParticipated = errors.New("already participated today")

	// ErrAlreadyCheckedIn means the daily check-in was already claimed.
	ErrAlreadyCheckedIn = errors.New("already checked in today")

	// ErrInsufficientBalance means the stake exceeds the remaining
	// resource or duration. Terminal for this attempt.
	ErrInsufficientBalance = errors.New("insufficient remaining balance")

	// ErrNotEligible means an unlimited/lifetime plan tried a duration
	// wager or contest.
	ErrNotEligible = errors.New("plan not eligible for duration wagering")

	// ErrAccountNotFound means the user vanished from the durable store.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidStake means the stake is not one of the allowed
	// denominations.
	ErrInvalidStake = errors.New("invalid stake amount")
)

// PersistenceError wraps a failed durable write with enough context to
// replay the mutation manually.
type PersistenceError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s user=%d: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialSettlementError reports a draw that paid some but not all
// winners. The pool is already cleared; the error carries the exact
// payment status and is never retried automatically.
type PartialSettlementError struct {
	Type    ContestType
	Date    string
	Winners []Winner // Paid flag set per winner
	Err     error    // first payment failure
}

func (e *PartialSettlementError) Error() string {
	paid := 0
	for _, w := range e.Winners {
		if w.Paid {
			paid++
		}
	}
	return fmt.Sprintf("partial settlement: %s %s paid %d/%d winners: %v",
		e.Type, e.Date, paid, len(e.Winners), e.Err)
}

func (e *PartialSettlementError) Unwrap() error { return e.Err }
