// Package model defines the core domain types shared across the economy
// engine. Resource quantities in user-facing units (GB, days) use
// shopspring/decimal, never float64; the account boundary works in
// int64 base units (bytes, epoch seconds).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContestType identifies which scarce resource a wager or contest stakes.
type ContestType string

const (
	// ContestTraffic stakes data-transfer quota, denominated in GB.
	ContestTraffic ContestType = "traffic"
	// ContestTime stakes remaining subscription duration, in whole days.
	ContestTime ContestType = "time"
)

// Types lists all contest types in settlement order.
var Types = []ContestType{ContestTraffic, ContestTime}

// Unit returns the user-facing unit for the type.
func (t ContestType) Unit() string {
	if t == ContestTime {
		return "days"
	}
	return "GB"
}

// Valid reports whether t is a known contest type.
func (t ContestType) Valid() bool {
	return t == ContestTraffic || t == ContestTime
}

const (
	// BytesPerGB converts GB-denominated stakes to account base units.
	BytesPerGB = int64(1024 * 1024 * 1024)
	// SecondsPerDay converts day-denominated stakes to expiry shifts.
	SecondsPerDay = int64(86400)
)

// Account is the lock-protected view of a user's scarce balances. It is
// owned by the durable user store; the engine borrows it inside a
// critical section only.
type Account struct {
	ID           int64  `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	UsedUpload   int64  `json:"used_upload" db:"u"`
	UsedDownload int64  `json:"used_download" db:"d"`
	QuotaBytes   int64  `json:"quota_bytes" db:"transfer_enable"`
	// ExpiresAt is a unix epoch; nil means an unlimited/lifetime plan,
	// which is not eligible for duration wagering.
	ExpiresAt *int64 `json:"expires_at" db:"expired_at"`
}

// UsedBytes returns total consumed traffic.
func (a *Account) UsedBytes() int64 {
	return a.UsedUpload + a.UsedDownload
}

// RemainingBytes returns unconsumed quota, never negative.
func (a *Account) RemainingBytes() int64 {
	r := a.QuotaBytes - a.UsedBytes()
	if r < 0 {
		return 0
	}
	return r
}

// RemainingSeconds returns seconds of subscription left at now, or 0
// when expired. The second return is false for unlimited plans.
func (a *Account) RemainingSeconds(now time.Time) (int64, bool) {
	if a.ExpiresAt == nil {
		return 0, false
	}
	r := *a.ExpiresAt - now.Unix()
	if r < 0 {
		r = 0
	}
	return r, true
}

// Delta is a validated balance mutation applied atomically by the
// account mutator. Consume and grant of the same resource are combined
// into one delta so no intermediate charged-but-unpaid state is ever
// persisted.
type Delta struct {
	ConsumeBytes int64
	GrantBytes   int64
	// ShiftExpirySec moves the expiry forward (positive) or backward
	// (negative). Requires a non-nil expiry.
	ShiftExpirySec int64
	ResetUsage     bool
}

// Tier is a named payout-multiplier bracket of the wager wheel.
type Tier string

const (
	TierJackpot     Tier = "jackpot"     // roll 1, exactly 10x
	TierBigWin      Tier = "big_win"     // roll 2-5, 2.0x-5.0x
	TierNormalWin   Tier = "normal_win"  // roll 6-25, 1.1x-1.9x
	TierConsolation Tier = "consolation" // roll 26-100, 0.1x-0.9x
)

// WagerResult is the structured outcome of one instant wager.
type WagerResult struct {
	UserID int64           `json:"user_id"`
	Type   ContestType     `json:"type"`
	Stake  decimal.Decimal `json:"stake"`  // in Unit()
	Payout decimal.Decimal `json:"payout"` // in Unit()
	Tier   Tier            `json:"tier"`
	Roll   int             `json:"roll"`
}

// PoolEntry is one user's stake inside a contest pool. The entry set is
// keyed by user id, so a user holds at most one entry per type per day.
type PoolEntry struct {
	UserID   int64           `json:"user_id"`
	Handle   string          `json:"handle"`
	Stake    decimal.Decimal `json:"stake"`
	JoinedAt int64           `json:"joined_at"`
}

// Pool is the aggregate contest state for one type and date. It lives as
// a single ledger document so the draw can read and clear it atomically.
type Pool struct {
	Type    ContestType         `json:"type"`
	Date    string              `json:"date"` // YYYY-MM-DD
	Total   decimal.Decimal     `json:"total"`
	Entries map[int64]PoolEntry `json:"entries"`
}

// Winner is one ranked prize share of a settled pool.
type Winner struct {
	UserID int64           `json:"user_id"`
	Handle string          `json:"handle"`
	Prize  decimal.Decimal `json:"prize"`
	Paid   bool            `json:"paid"`
}

// DrawResult is the settlement outcome for one type and date, handed to
// the notification dispatcher.
type DrawResult struct {
	Type             ContestType     `json:"type"`
	Date             string          `json:"date"`
	Pool             decimal.Decimal `json:"pool"`
	ParticipantCount int             `json:"participant_count"`
	Winners          []Winner        `json:"winners"` // ordered by rank
	// Participants carries the full entry set for the surprise step.
	Participants map[int64]PoolEntry `json:"-"`
}

// HistoryWinner is the archived form of a prize share.
type HistoryWinner struct {
	Handle string          `json:"handle"`
	Prize  decimal.Decimal `json:"prize"`
}

// HistoryEntry is the archived settlement of one type on one date.
type HistoryEntry struct {
	Pool         decimal.Decimal `json:"pool"`
	Participants int             `json:"participants"`
	Winners      []HistoryWinner `json:"winners"`
}

// HistoryRecord holds both per-type settlements for a date. Retained 30
// days in the ledger, then evictable.
type HistoryRecord struct {
	Date    string        `json:"date"`
	Traffic *HistoryEntry `json:"traffic"`
	Time    *HistoryEntry `json:"time"`
}

// SurpriseType enumerates the post-draw bonus events.
type SurpriseType string

const (
	SurpriseMeteorShower SurpriseType = "meteor_shower"
	SurpriseTimeCapsule  SurpriseType = "time_capsule"
	SurpriseTrafficRain  SurpriseType = "traffic_rain"
	SurpriseLuckyWheel   SurpriseType = "lucky_wheel"
)

// SurpriseEvent is the transient result of a triggered bonus event. Not
// persisted beyond the notification payload.
type SurpriseEvent struct {
	Type          SurpriseType    `json:"type"`
	Magnitude     decimal.Decimal `json:"magnitude"` // GB or days per beneficiary
	Beneficiaries int             `json:"beneficiaries"`
	WinnerHandle  string          `json:"winner_handle,omitempty"` // lucky wheel only
	Description   string          `json:"description"`
}

// DrawReport is the combined daily settlement payload for the
// notification dispatcher.
type DrawReport struct {
	Date     string         `json:"date"`
	Results  []DrawResult   `json:"per_type"`
	Surprise *SurpriseEvent `json:"surprise_event,omitempty"`
}

// GameRecord is one entry of the recent big-win feed (payout >= 2x).
type GameRecord struct {
	Type   ContestType     `json:"type"`
	Player string          `json:"player"` // masked handle
	Stake  decimal.Decimal `json:"bet"`
	Payout decimal.Decimal `json:"win"`
	At     int64           `json:"timestamp"`
}
