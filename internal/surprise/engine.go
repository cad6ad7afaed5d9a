// Package surprise implements the post-draw bonus events. After the
// daily draws settle, a 5% roll may trigger one weighted event that
// grants extra resources to the day's participants. Grants are best
// effort: a failed grant is logged and skipped, never retried, and the
// event itself is not persisted.
package surprise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
)

// TriggerPercent is the chance a surprise event fires after the draws.
const TriggerPercent = 5

// Event selection weights, cumulative over a 1-100 roll.
//
//	1-30    meteor shower   5-15 GB to every participant
//	31-55   time capsule    1-3 days to every participant
//	56-80   traffic rain    20-50 GB to a 30-60% subset
//	81-100  lucky wheel     100-200 GB or 7-15 days to one participant
const (
	weightMeteor  = 30
	weightCapsule = 25
	weightRain    = 25
)

// Engine rolls and applies surprise events.
type Engine struct {
	locks   lock.Manager
	mutator *account.Mutator
	src     rng.Source

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// New creates a surprise engine.
func New(locks lock.Manager, mutator *account.Mutator, src rng.Source) *Engine {
	return &Engine{locks: locks, mutator: mutator, src: src, Now: time.Now}
}

// MaybeRun rolls the trigger and, on success, applies one weighted event
// across the given participants. Returns nil when nothing fired or the
// participant set is empty.
func (e *Engine) MaybeRun(ctx context.Context, participants map[int64]model.PoolEntry) *model.SurpriseEvent {
	if len(participants) == 0 {
		return nil
	}
	if rng.Roll(e.src, 1, 100) > TriggerPercent {
		return nil
	}
	return e.Run(ctx, participants)
}

// Run applies one weighted event unconditionally. Exposed for the admin
// trigger endpoint.
func (e *Engine) Run(ctx context.Context, participants map[int64]model.PoolEntry) *model.SurpriseEvent {
	if len(participants) == 0 {
		return nil
	}

	ids := sortedIDs(participants)
	var event *model.SurpriseEvent

	roll := rng.Roll(e.src, 1, 100)
	switch {
	case roll <= weightMeteor:
		event = e.meteorShower(ctx, ids)
	case roll <= weightMeteor+weightCapsule:
		event = e.timeCapsule(ctx, ids)
	case roll <= weightMeteor+weightCapsule+weightRain:
		event = e.trafficRain(ctx, ids)
	default:
		event = e.luckyWheel(ctx, ids, participants)
	}

	slog.Info("surprise event fired",
		"type", event.Type,
		"magnitude", event.Magnitude.String(),
		"beneficiaries", event.Beneficiaries,
	)
	return event
}

// meteorShower grants the same GB amount to every participant.
func (e *Engine) meteorShower(ctx context.Context, ids []int64) *model.SurpriseEvent {
	amount := int64(rng.Roll(e.src, 5, 15))
	paid := e.grantAll(ctx, ids, model.Delta{GrantBytes: amount * model.BytesPerGB})
	return &model.SurpriseEvent{
		Type:          model.SurpriseMeteorShower,
		Magnitude:     decimal.NewFromInt(amount),
		Beneficiaries: paid,
		Description:   fmt.Sprintf("Meteor shower: %d GB for every participant", amount),
	}
}

// timeCapsule extends every limited plan by the same number of days.
// Unlimited plans are skipped.
func (e *Engine) timeCapsule(ctx context.Context, ids []int64) *model.SurpriseEvent {
	days := int64(rng.Roll(e.src, 1, 3))
	paid := e.grantAll(ctx, ids, model.Delta{ShiftExpirySec: days * model.SecondsPerDay})
	return &model.SurpriseEvent{
		Type:          model.SurpriseTimeCapsule,
		Magnitude:     decimal.NewFromInt(days),
		Beneficiaries: paid,
		Description:   fmt.Sprintf("Time capsule: %d extra day(s) for every participant", days),
	}
}

// trafficRain grants GB to a random 30-60% subset, at least one user.
func (e *Engine) trafficRain(ctx context.Context, ids []int64) *model.SurpriseEvent {
	amount := int64(rng.Roll(e.src, 20, 50))
	percent := rng.Roll(e.src, 30, 60)

	count := len(ids) * percent / 100
	if count < 1 {
		count = 1
	}
	picked := append([]int64(nil), ids...)
	rng.Shuffle(e.src, len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	picked = picked[:count]

	paid := e.grantAll(ctx, picked, model.Delta{GrantBytes: amount * model.BytesPerGB})
	return &model.SurpriseEvent{
		Type:          model.SurpriseTrafficRain,
		Magnitude:     decimal.NewFromInt(amount),
		Beneficiaries: paid,
		Description:   fmt.Sprintf("Traffic rain: %d GB for %d lucky user(s)", amount, count),
	}
}

// luckyWheel grants one participant a large prize, randomly either
// traffic or duration. A duration prize falls back to traffic when the
// winner's plan is unlimited.
func (e *Engine) luckyWheel(ctx context.Context, ids []int64, participants map[int64]model.PoolEntry) *model.SurpriseEvent {
	winner := ids[e.src.IntN(len(ids))]
	handle := model.MaskHandle(participants[winner].Handle)

	if e.src.IntN(2) == 1 {
		days := int64(rng.Roll(e.src, 7, 15))
		err := e.grant(ctx, winner, model.Delta{ShiftExpirySec: days * model.SecondsPerDay})
		if err == nil {
			return &model.SurpriseEvent{
				Type:          model.SurpriseLuckyWheel,
				Magnitude:     decimal.NewFromInt(days),
				Beneficiaries: 1,
				WinnerHandle:  handle,
				Description:   fmt.Sprintf("Lucky wheel: %s wins %d extra days", handle, days),
			}
		}
		if !errors.Is(err, model.ErrNotEligible) {
			slog.Error("lucky wheel grant failed", "user", winner, "err", err)
			return &model.SurpriseEvent{
				Type:          model.SurpriseLuckyWheel,
				Magnitude:     decimal.NewFromInt(days),
				Beneficiaries: 0,
				WinnerHandle:  handle,
				Description:   fmt.Sprintf("Lucky wheel: %s wins %d extra days", handle, days),
			}
		}
	}

	amount := int64(rng.Roll(e.src, 100, 200))
	paid := e.grantAll(ctx, []int64{winner}, model.Delta{GrantBytes: amount * model.BytesPerGB})
	return &model.SurpriseEvent{
		Type:          model.SurpriseLuckyWheel,
		Magnitude:     decimal.NewFromInt(amount),
		Beneficiaries: paid,
		WinnerHandle:  handle,
		Description:   fmt.Sprintf("Lucky wheel: %s wins %d GB", handle, amount),
	}
}

// grantAll applies delta to each user in order, skipping failures, and
// returns how many grants landed.
func (e *Engine) grantAll(ctx context.Context, ids []int64, delta model.Delta) int {
	paid := 0
	for _, id := range ids {
		if err := e.grant(ctx, id, delta); err != nil {
			if !errors.Is(err, model.ErrNotEligible) {
				slog.Warn("surprise grant failed", "user", id, "err", err)
			}
			continue
		}
		paid++
	}
	return paid
}

// grant applies one delta under the user's lock.
func (e *Engine) grant(ctx context.Context, userID int64, delta model.Delta) error {
	l, err := e.locks.Acquire(ctx, lock.UserSubject(userID), lock.DefaultWait, lock.DefaultTTL)
	if err != nil {
		return err
	}
	defer e.locks.Release(ctx, l)

	_, err = e.mutator.Apply(ctx, userID, delta)
	return err
}

func sortedIDs(participants map[int64]model.PoolEntry) []int64 {
	ids := make([]int64, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
