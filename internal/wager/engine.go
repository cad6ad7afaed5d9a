// Package wager implements the two instant mini-games: the resource
// wheel (GB) and the duration wheel (days). A stake is consumed and the
// tiered payout granted as one combined delta, so no charged-but-unpaid
// state is ever persisted.
package wager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
)

// Allowed stake denominations per variant, mirroring the panel's wheel
// menus. Anything else is rejected before any balance is touched.
var (
	trafficStakes = map[int]bool{5: true, 10: true, 20: true, 50: true}
	timeStakes    = map[int]bool{1: true, 3: true, 5: true, 7: true}
)

// ValidStake reports whether stake is an allowed denomination for typ.
func ValidStake(typ model.ContestType, stake int) bool {
	if typ == model.ContestTime {
		return timeStakes[stake]
	}
	return trafficStakes[stake]
}

// Engine runs instant wagers. All per-user serialization goes through
// the lock manager; all balance writes go through the mutator.
type Engine struct {
	locks    lock.Manager
	accounts account.Store
	mutator  *account.Mutator
	ledger   ledger.Store
	src      rng.Source

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time

	// OnBigWin, when set, receives each feed entry as it is recorded.
	OnBigWin func(model.GameRecord)
}

// New creates a wager engine.
func New(locks lock.Manager, accounts account.Store, mutator *account.Mutator, led ledger.Store, src rng.Source) *Engine {
	return &Engine{
		locks:    locks,
		accounts: accounts,
		mutator:  mutator,
		ledger:   led,
		src:      src,
		Now:      time.Now,
	}
}

// Play runs one spin: lock, re-read, validate, roll, apply the combined
// delta, release. stake is in the variant's unit (GB or days).
func (e *Engine) Play(ctx context.Context, userID int64, typ model.ContestType, stake int) (*model.WagerResult, error) {
	if !typ.Valid() {
		return nil, model.ErrInvalidStake
	}
	if !ValidStake(typ, stake) {
		return nil, model.ErrInvalidStake
	}

	l, err := e.locks.Acquire(ctx, lock.UserSubject(userID), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, model.ErrBusy
		}
		return nil, err
	}
	defer e.locks.Release(ctx, l)

	acct, err := e.accounts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	var result *model.WagerResult
	switch typ {
	case model.ContestTraffic:
		result, err = e.playTraffic(ctx, acct, stake)
	case model.ContestTime:
		result, err = e.playTime(ctx, acct, stake)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("wager settled",
		"user", userID,
		"type", typ,
		"stake", result.Stake.String(),
		"payout", result.Payout.String(),
		"tier", result.Tier,
		"roll", result.Roll,
	)

	e.recordBigWin(ctx, acct, result)
	return result, nil
}

func (e *Engine) playTraffic(ctx context.Context, acct *model.Account, stakeGB int) (*model.WagerResult, error) {
	stakeBytes := int64(stakeGB) * model.BytesPerGB
	if acct.RemainingBytes() < stakeBytes {
		return nil, model.ErrInsufficientBalance
	}

	tier, mult, roll := rollTier(e.src)
	stake := decimal.NewFromInt(int64(stakeGB))
	payout := stake.Mul(mult).Round(2)
	payoutBytes := payout.Mul(decimal.NewFromInt(model.BytesPerGB)).IntPart()

	_, err := e.mutator.Apply(ctx, acct.ID, model.Delta{
		ConsumeBytes: stakeBytes,
		GrantBytes:   payoutBytes,
	})
	if err != nil {
		return nil, err
	}

	return &model.WagerResult{
		UserID: acct.ID,
		Type:   model.ContestTraffic,
		Stake:  stake,
		Payout: payout,
		Tier:   tier,
		Roll:   roll,
	}, nil
}

func (e *Engine) playTime(ctx context.Context, acct *model.Account, stakeDays int) (*model.WagerResult, error) {
	remaining, limited := acct.RemainingSeconds(e.Now())
	if !limited {
		return nil, model.ErrNotEligible
	}
	stakeSec := int64(stakeDays) * model.SecondsPerDay
	if remaining < stakeSec {
		return nil, model.ErrInsufficientBalance
	}

	tier, mult, roll := rollTier(e.src)
	stake := decimal.NewFromInt(int64(stakeDays))
	// Duration payouts round to the nearest whole day. Every tier
	// multiplier is non-negative, so the rounded payout is too.
	payout := stake.Mul(mult).Round(0)

	shift := (payout.IntPart() - int64(stakeDays)) * model.SecondsPerDay
	_, err := e.mutator.Apply(ctx, acct.ID, model.Delta{ShiftExpirySec: shift})
	if err != nil {
		return nil, err
	}

	return &model.WagerResult{
		UserID: acct.ID,
		Type:   model.ContestTime,
		Stake:  stake,
		Payout: payout,
		Tier:   tier,
		Roll:   roll,
	}, nil
}

// recordBigWin appends payouts of at least 2x to the day's win feed.
// The feed is advisory display state; a lost write is acceptable.
func (e *Engine) recordBigWin(ctx context.Context, acct *model.Account, res *model.WagerResult) {
	if res.Payout.LessThan(res.Stake.Mul(decimal.NewFromInt(2))) {
		return
	}

	now := e.Now()
	key := ledger.RecordsKey(ledger.DateOf(now))
	record := model.GameRecord{
		Type:   res.Type,
		Player: model.MaskHandle(acct.Email),
		Stake:  res.Stake,
		Payout: res.Payout,
		At:     now.Unix(),
	}
	if e.OnBigWin != nil {
		e.OnBigWin(record)
	}

	var feed []model.GameRecord
	if _, err := ledger.GetJSON(ctx, e.ledger, key, &feed); err != nil {
		slog.Warn("win feed read failed", "key", key, "err", err)
		return
	}

	feed = append([]model.GameRecord{record}, feed...)
	if len(feed) > 20 {
		feed = feed[:20]
	}

	if err := ledger.PutJSON(ctx, e.ledger, key, feed, ledger.RecordsTTL); err != nil {
		slog.Warn("win feed write failed", "key", key, "err", err)
	}
}

// Records returns the day's big-win feed, newest first.
func (e *Engine) Records(ctx context.Context, date string) ([]model.GameRecord, error) {
	if err := ledger.ValidDate(date); err != nil {
		return nil, err
	}
	var feed []model.GameRecord
	if _, err := ledger.GetJSON(ctx, e.ledger, ledger.RecordsKey(date), &feed); err != nil {
		return nil, err
	}
	return feed, nil
}
