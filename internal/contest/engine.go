// Package contest implements the daily pot games: users stake into a
// shared pool per contest type, and a scheduled draw splits the pool
// among up to three randomly ranked winners. The pool lives as one
// ledger document per type and date, so the draw's atomic GetDelete is
// the single serialization point against in-flight joins.
package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
	"github.com/vpanel/economy-engine/internal/wager"
)

// Prize splits by winner count. With fewer entrants than ranks the
// leading shares absorb the pool: a lone entrant takes all of it back.
var splits = map[int][]int64{
	1: {100},
	2: {70, 30},
	3: {50, 30, 20},
}

const maxWinners = 3

// RankingLimit caps the public leaderboard.
const RankingLimit = 10

// Engine runs contest joins and draws.
type Engine struct {
	locks    lock.Manager
	accounts account.Store
	mutator  *account.Mutator
	ledger   ledger.Store
	src      rng.Source

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// New creates a contest engine.
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

// Join stakes the user into today's pool for typ. The stake is consumed
// immediately; it comes back only as a prize share. Lock order is user
// first, then pool, the same order the draw's payment step uses.
func (e *Engine) Join(ctx context.Context, userID int64, typ model.ContestType, stake int) (*model.PoolEntry, error) {
	if !typ.Valid() || !wager.ValidStake(typ, stake) {
		return nil, model.ErrInvalidStake
	}

	userLock, err := e.locks.Acquire(ctx, lock.UserSubject(userID), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, model.ErrBusy
		}
		return nil, err
	}
	defer e.locks.Release(ctx, userLock)

	acct, err := e.accounts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	if err := e.checkStake(acct, typ, stake, now); err != nil {
		return nil, err
	}

	date := ledger.DateOf(now)
	poolLock, err := e.locks.Acquire(ctx, lock.PoolSubject(string(typ), date), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, model.ErrBusy
		}
		return nil, err
	}
	defer e.locks.Release(ctx, poolLock)

	key := ledger.PoolKey(string(typ), date)
	pool := model.Pool{Type: typ, Date: date, Entries: map[int64]model.PoolEntry{}}
	if _, err := ledger.GetJSON(ctx, e.ledger, key, &pool); err != nil {
		return nil, err
	}
	if _, ok := pool.Entries[userID]; ok {
		return nil, model.ErrAlreadyParticipated
	}

	// Charge the stake before publishing the entry. If the pool write
	// then fails, the consumption is reversed with a mirror grant.
	stakeDec := decimal.NewFromInt(int64(stake))
	if _, err := e.mutator.Apply(ctx, userID, consumeDelta(typ, stake)); err != nil {
		return nil, err
	}

	entry := model.PoolEntry{
		UserID:   userID,
		Handle:   acct.Email,
		Stake:    stakeDec,
		JoinedAt: now.Unix(),
	}
	pool.Entries[userID] = entry
	pool.Total = pool.Total.Add(stakeDec)

	ttl, err := ledger.PoolTTL(date, now)
	if err != nil {
		return nil, err
	}
	if err := ledger.PutJSON(ctx, e.ledger, key, pool, ttl); err != nil {
		if _, rerr := e.mutator.Apply(ctx, userID, grantDelta(typ, stakeDec)); rerr != nil {
			slog.Error("contest join refund failed",
				"user", userID, "type", typ, "stake", stake, "err", rerr)
			return nil, fmt.Errorf("contest: pool write failed and refund failed: %w", rerr)
		}
		return nil, fmt.Errorf("contest: pool write: %w", err)
	}

	slog.Info("contest joined",
		"user", userID, "type", typ, "date", date,
		"stake", stakeDec.String(), "pool", pool.Total.String(),
		"participants", len(pool.Entries),
	)
	return &entry, nil
}

// checkStake validates balance and eligibility against a fresh account
// read taken under the user lock.
func (e *Engine) checkStake(acct *model.Account, typ model.ContestType, stake int, now time.Time) error {
	switch typ {
	case model.ContestTime:
		remaining, limited := acct.RemainingSeconds(now)
		if !limited {
			return model.ErrNotEligible
		}
		if remaining < int64(stake)*model.SecondsPerDay {
			return model.ErrInsufficientBalance
		}
	default:
		if acct.RemainingBytes() < int64(stake)*model.BytesPerGB {
			return model.ErrInsufficientBalance
		}
	}
	return nil
}

// Draw settles the pool for typ on date. The pool document is removed
// atomically under the pool lock before any payment, so a repeated draw
// finds nothing and reports an empty result instead of paying twice.
func (e *Engine) Draw(ctx context.Context, typ model.ContestType, date string) (*model.DrawResult, error) {
	if !typ.Valid() {
		return nil, model.ErrInvalidStake
	}
	if err := ledger.ValidDate(date); err != nil {
		return nil, err
	}

	pool, err := e.takePool(ctx, typ, date)
	if err != nil {
		return nil, err
	}

	result := &model.DrawResult{Type: typ, Date: date, Pool: decimal.Zero}
	if pool == nil || len(pool.Entries) == 0 {
		slog.Info("draw skipped, empty pool", "type", typ, "date", date)
		return result, nil
	}
	result.Pool = pool.Total
	result.ParticipantCount = len(pool.Entries)
	result.Participants = pool.Entries
	result.Winners = e.pickWinners(pool)

	// Payments happen after the pool is gone. A failed grant leaves the
	// winner marked unpaid and the draw reported as partial; operators
	// replay from the error payload, never from a re-run.
	var firstErr error
	for i := range result.Winners {
		w := &result.Winners[i]
		if err := e.payWinner(ctx, typ, w); err != nil {
			slog.Error("winner payment failed",
				"type", typ, "date", date, "user", w.UserID,
				"prize", w.Prize.String(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		w.Paid = true
	}

	e.archive(ctx, result)

	slog.Info("draw settled",
		"type", typ, "date", date,
		"pool", result.Pool.String(),
		"participants", result.ParticipantCount,
		"winners", len(result.Winners),
	)

	if firstErr != nil {
		return result, &model.PartialSettlementError{
			Type:    typ,
			Date:    date,
			Winners: result.Winners,
			Err:     firstErr,
		}
	}
	return result, nil
}

// takePool atomically claims and clears the pool document.
func (e *Engine) takePool(ctx context.Context, typ model.ContestType, date string) (*model.Pool, error) {
	poolLock, err := e.locks.Acquire(ctx, lock.PoolSubject(string(typ), date), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, model.ErrBusy
		}
		return nil, err
	}
	defer e.locks.Release(ctx, poolLock)

	var pool model.Pool
	found, err := ledger.GetDeleteJSON(ctx, e.ledger, ledger.PoolKey(string(typ), date), &pool)
	if err != nil {
		return nil, fmt.Errorf("contest: claim pool: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &pool, nil
}

// pickWinners ranks min(3, N) distinct entrants by shuffle and assigns
// their prize shares. Traffic prizes keep two decimals; duration prizes
// round to whole days.
func (e *Engine) pickWinners(pool *model.Pool) []model.Winner {
	entries := make([]model.PoolEntry, 0, len(pool.Entries))
	for _, entry := range pool.Entries {
		entries = append(entries, entry)
	}
	// Map order is random but not seeded; sort first so the shuffle is
	// the only source of randomness.
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	rng.Shuffle(e.src, len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})

	n := len(entries)
	if n > maxWinners {
		n = maxWinners
	}
	shares := splits[n]

	winners := make([]model.Winner, 0, n)
	hundred := decimal.NewFromInt(100)
	for i := 0; i < n; i++ {
		prize := pool.Total.Mul(decimal.NewFromInt(shares[i])).Div(hundred)
		if pool.Type == model.ContestTime {
			prize = prize.Round(0)
		} else {
			prize = prize.Round(2)
		}
		winners = append(winners, model.Winner{
			UserID: entries[i].UserID,
			Handle: entries[i].Handle,
			Prize:  prize,
		})
	}
	return winners
}

// payWinner grants one prize share under the winner's own user lock.
func (e *Engine) payWinner(ctx context.Context, typ model.ContestType, w *model.Winner) error {
	userLock, err := e.locks.Acquire(ctx, lock.UserSubject(w.UserID), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		return err
	}
	defer e.locks.Release(ctx, userLock)

	_, err = e.mutator.Apply(ctx, w.UserID, grantDelta(typ, w.Prize))
	return err
}

// archive folds the settlement into the date's history document. The
// archive is display state; a lost write degrades the history view only.
func (e *Engine) archive(ctx context.Context, result *model.DrawResult) {
	key := ledger.HistoryKey(result.Date)
	record := model.HistoryRecord{Date: result.Date}
	if _, err := ledger.GetJSON(ctx, e.ledger, key, &record); err != nil {
		slog.Warn("history read failed", "key", key, "err", err)
		return
	}

	entry := &model.HistoryEntry{
		Pool:         result.Pool,
		Participants: result.ParticipantCount,
	}
	for _, w := range result.Winners {
		entry.Winners = append(entry.Winners, model.HistoryWinner{
			Handle: model.MaskHandle(w.Handle),
			Prize:  w.Prize,
		})
	}
	if result.Type == model.ContestTime {
		record.Time = entry
	} else {
		record.Traffic = entry
	}

	if err := ledger.PutJSON(ctx, e.ledger, key, record, ledger.HistoryTTL); err != nil {
		slog.Warn("history write failed", "key", key, "err", err)
	}
}

// Ranking returns up to RankingLimit entries of today's pool for typ,
// largest stake first, ties broken by earlier join. Handles are masked.
func (e *Engine) Ranking(ctx context.Context, typ model.ContestType, date string) ([]model.PoolEntry, error) {
	if !typ.Valid() {
		return nil, model.ErrInvalidStake
	}
	if err := ledger.ValidDate(date); err != nil {
		return nil, err
	}

	var pool model.Pool
	found, err := ledger.GetJSON(ctx, e.ledger, ledger.PoolKey(string(typ), date), &pool)
	if err != nil {
		return nil, err
	}
	if !found {
		return []model.PoolEntry{}, nil
	}

	entries := make([]model.PoolEntry, 0, len(pool.Entries))
	for _, entry := range pool.Entries {
		entry.Handle = model.MaskHandle(entry.Handle)
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Stake.Equal(entries[j].Stake) {
			return entries[i].Stake.GreaterThan(entries[j].Stake)
		}
		return entries[i].JoinedAt < entries[j].JoinedAt
	})
	if len(entries) > RankingLimit {
		entries = entries[:RankingLimit]
	}
	return entries, nil
}

// History returns the archived settlements for the days most recent
// calendar days ending at now, newest first. Days without a record are
// omitted.
func (e *Engine) History(ctx context.Context, days int) ([]model.HistoryRecord, error) {
	if days <= 0 {
		days = 7
	}
	now := e.Now()

	records := make([]model.HistoryRecord, 0, days)
	for i := 0; i < days; i++ {
		date := ledger.DateOf(now.AddDate(0, 0, -i))
		var record model.HistoryRecord
		found, err := ledger.GetJSON(ctx, e.ledger, ledger.HistoryKey(date), &record)
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, record)
		}
	}
	return records, nil
}

// consumeDelta charges a stake in the type's base unit.
func consumeDelta(typ model.ContestType, stake int) model.Delta {
	if typ == model.ContestTime {
		return model.Delta{ShiftExpirySec: -int64(stake) * model.SecondsPerDay}
	}
	return model.Delta{ConsumeBytes: int64(stake) * model.BytesPerGB}
}

// grantDelta pays a prize quoted in the type's display unit.
func grantDelta(typ model.ContestType, amount decimal.Decimal) model.Delta {
	if typ == model.ContestTime {
		return model.Delta{ShiftExpirySec: amount.Round(0).IntPart() * model.SecondsPerDay}
	}
	return model.Delta{GrantBytes: amount.Mul(decimal.NewFromInt(model.BytesPerGB)).IntPart()}
}
