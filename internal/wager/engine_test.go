package wager_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
	"github.com/vpanel/economy-engine/internal/wager"
)

const gb = model.BytesPerGB

func newEngine(t *testing.T, src rng.Source) (*wager.Engine, *account.MemoryStore) {
	t.Helper()
	accounts := account.NewMemoryStore()
	e := wager.New(lock.NewMemoryManager(), accounts, account.NewMutator(accounts), ledger.NewMemoryStore(), src)
	return e, accounts
}

func seedTraffic(accounts *account.MemoryStore, quotaGB, usedGB int64) {
	accounts.Seed(model.Account{
		ID:         1,
		Email:      "alice@example.com",
		QuotaBytes: quotaGB * gb,
		UsedUpload: usedGB * gb,
	})
}

func seedTime(accounts *account.MemoryStore, now time.Time, days int64) {
	exp := now.Add(time.Duration(days) * 24 * time.Hour).Unix()
	accounts.Seed(model.Account{
		ID:         1,
		Email:      "alice@example.com",
		QuotaBytes: 100 * gb,
		ExpiresAt:  &exp,
	})
}

// Scripted roll cheat sheet: rng.Roll(src, 1, 100) consumes one value v
// and yields roll v+1; bracket rolls consume a second value.

func TestPlayTraffic_BigWin(t *testing.T) {
	// Roll 3 (big win), bracket tenths 20+10=30 -> 3.0x.
	src := &rng.Scripted{Vals: []int{2, 10}}
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 100, 0)

	res, err := e.Play(context.Background(), 1, model.ContestTraffic, 10)
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	if res.Tier != model.TierBigWin {
		t.Errorf("expected big_win, got %s", res.Tier)
	}
	if !res.Payout.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected payout 30, got %s", res.Payout)
	}
	// Big-win payouts must land in [2.0x, 5.0x] of a 10 GB stake.
	if res.Payout.LessThan(decimal.NewFromInt(20)) || res.Payout.GreaterThan(decimal.NewFromInt(50)) {
		t.Errorf("big win payout out of range: %s", res.Payout)
	}

	// Net effect on the account: staked 10, paid 30.
	acct, _ := accounts.Load(context.Background(), 1)
	if acct.UsedUpload < 0 {
		t.Errorf("used went negative: %d", acct.UsedUpload)
	}
	wantRemaining := (100 - 10 + 30) * gb
	if acct.RemainingBytes() != wantRemaining {
		t.Errorf("expected remaining %d, got %d", wantRemaining, acct.RemainingBytes())
	}
}

func TestPlayTraffic_Jackpot(t *testing.T) {
	src := &rng.Scripted{Vals: []int{0}} // roll 1
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 100, 0)

	res, err := e.Play(context.Background(), 1, model.ContestTraffic, 10)
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if res.Tier != model.TierJackpot {
		t.Errorf("expected jackpot, got %s", res.Tier)
	}
	if !res.Payout.Equal(decimal.NewFromInt(100)) {
		t.Errorf("jackpot must be exactly 10x, got %s", res.Payout)
	}
}

func TestPlayTraffic_ConsolationRounding(t *testing.T) {
	// Roll 50 (consolation), tenths 1+2=3 -> 0.3x of 5 GB = 1.50 GB.
	src := &rng.Scripted{Vals: []int{49, 2}}
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 100, 0)

	res, err := e.Play(context.Background(), 1, model.ContestTraffic, 5)
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if res.Tier != model.TierConsolation {
		t.Errorf("expected consolation, got %s", res.Tier)
	}
	if !res.Payout.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected payout 1.5, got %s", res.Payout)
	}
}

func TestPlayTraffic_InsufficientBalance(t *testing.T) {
	e, accounts := newEngine(t, rng.New(1))
	seedTraffic(accounts, 100, 96) // 4 GB remaining

	_, err := e.Play(context.Background(), 1, model.ContestTraffic, 5)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	acct, _ := accounts.Load(context.Background(), 1)
	if acct.UsedUpload != 96*gb {
		t.Errorf("failed wager must not touch the account, used=%d", acct.UsedUpload)
	}
}

func TestPlayTraffic_InvalidStake(t *testing.T) {
	e, accounts := newEngine(t, rng.New(1))
	seedTraffic(accounts, 100, 0)

	for _, stake := range []int{0, -5, 7, 100} {
		if _, err := e.Play(context.Background(), 1, model.ContestTraffic, stake); !errors.Is(err, model.ErrInvalidStake) {
			t.Errorf("stake=%d: expected ErrInvalidStake, got %v", stake, err)
		}
	}
}

func TestPlayTime_WholeDayRounding(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Roll 10 (normal win), tenths 11+4=15 -> 1.5x of 3 days = 4.5 -> 5 days.
	src := &rng.Scripted{Vals: []int{9, 4}}
	e, accounts := newEngine(t, src)
	seedTime(accounts, now, 30)
	e.Now = func() time.Time { return now }

	res, err := e.Play(context.Background(), 1, model.ContestTime, 3)
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if !res.Payout.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5 whole days, got %s", res.Payout)
	}

	acct, _ := accounts.Load(context.Background(), 1)
	want := now.Add(32 * 24 * time.Hour).Unix() // 30 - 3 + 5
	if *acct.ExpiresAt != want {
		t.Errorf("expected expiry %d, got %d", want, *acct.ExpiresAt)
	}
}

func TestPlayTime_UnlimitedPlanRejected(t *testing.T) {
	e, accounts := newEngine(t, rng.New(1))
	seedTraffic(accounts, 100, 0) // nil expiry

	_, err := e.Play(context.Background(), 1, model.ContestTime, 1)
	if !errors.Is(err, model.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestPlayTime_InsufficientDuration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e, accounts := newEngine(t, rng.New(1))
	seedTime(accounts, now, 2)
	e.Now = func() time.Time { return now }

	_, err := e.Play(context.Background(), 1, model.ContestTime, 3)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPlay_AccountNotFound(t *testing.T) {
	e, _ := newEngine(t, rng.New(1))

	_, err := e.Play(context.Background(), 42, model.ContestTraffic, 5)
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPlay_ConcurrentExclusivity(t *testing.T) {
	// Exactly enough balance for one 50 GB stake: two concurrent spins
	// must yield one success and one InsufficientBalance.
	// Both scripted rolls are consolation 0.1x, so the first payout
	// cannot re-fund the second stake.
	src := &rng.Scripted{Vals: []int{97, 0, 97, 0}}
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 50, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.Play(context.Background(), 1, model.ContestTraffic, 50)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Errorf("expected 1 success + 1 insufficient, got ok=%d insufficient=%d", ok, insufficient)
	}
}

func TestPlay_BigWinRecorded(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &rng.Scripted{Vals: []int{2, 10}} // 3.0x big win
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 100, 0)
	e.Now = func() time.Time { return now }

	if _, err := e.Play(context.Background(), 1, model.ContestTraffic, 10); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	feed, err := e.Records(context.Background(), "2025-06-01")
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("expected 1 feed entry, got %d", len(feed))
	}
	if feed[0].Player != "al***@example.com" {
		t.Errorf("feed must carry a masked handle, got %s", feed[0].Player)
	}
}

func TestPlay_SmallWinNotRecorded(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &rng.Scripted{Vals: []int{49, 2}} // 0.3x consolation
	e, accounts := newEngine(t, src)
	seedTraffic(accounts, 100, 0)
	e.Now = func() time.Time { return now }

	e.Play(context.Background(), 1, model.ContestTraffic, 5)

	feed, _ := e.Records(context.Background(), "2025-06-01")
	if len(feed) != 0 {
		t.Errorf("consolation must not enter the win feed, got %d entries", len(feed))
	}
}

func TestTierDistributionBounds(t *testing.T) {
	// Over many seeded spins every payout stays within its tier bounds.
	src := rng.New(7)
	e, accounts := newEngine(t, src)

	for i := 0; i < 500; i++ {
		seedTraffic(accounts, 1_000_000, 0)
		res, err := e.Play(context.Background(), 1, model.ContestTraffic, 10)
		if err != nil {
			t.Fatalf("spin %d failed: %v", i, err)
		}

		lo, hi := tierBounds(t, res.Tier)
		if res.Payout.LessThan(lo) || res.Payout.GreaterThan(hi) {
			t.Fatalf("spin %d: tier %s payout %s outside [%s, %s]",
				i, res.Tier, res.Payout, lo, hi)
		}
	}
}

func tierBounds(t *testing.T, tier model.Tier) (lo, hi decimal.Decimal) {
	t.Helper()
	switch tier {
	case model.TierJackpot:
		return decimal.NewFromInt(100), decimal.NewFromInt(100)
	case model.TierBigWin:
		return decimal.NewFromInt(20), decimal.NewFromInt(50)
	case model.TierNormalWin:
		return decimal.NewFromInt(11), decimal.NewFromInt(19)
	case model.TierConsolation:
		return decimal.NewFromInt(1), decimal.NewFromInt(9)
	}
	t.Fatalf("unknown tier %s", tier)
	return
}
