package contest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/contest"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/rng"
)

const gb = model.BytesPerGB

type fixture struct {
	engine   *contest.Engine
	accounts *account.MemoryStore
	ledger   ledger.Store
	now      time.Time
}

func newFixture(t *testing.T, src rng.Source) *fixture {
	t.Helper()
	accounts := account.NewMemoryStore()
	led := ledger.NewMemoryStore()
	mut := account.NewMutator(accounts)
	e := contest.New(lock.NewMemoryManager(), accounts, mut, led, src)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	mut.Now = e.Now
	return &fixture{engine: e, accounts: accounts, ledger: led, now: now}
}

func (f *fixture) seedTrafficUsers(n int, quotaGB int64) {
	for i := 1; i <= n; i++ {
		f.accounts.Seed(model.Account{
			ID:         int64(i),
			Email:      fmt.Sprintf("user%d@example.com", i),
			QuotaBytes: quotaGB * gb,
		})
	}
}

func (f *fixture) seedTimeUsers(n int, days int64) {
	for i := 1; i <= n; i++ {
		exp := f.now.Add(time.Duration(days) * 24 * time.Hour).Unix()
		f.accounts.Seed(model.Account{
			ID:         int64(i),
			Email:      fmt.Sprintf("user%d@example.com", i),
			QuotaBytes: 100 * gb,
			ExpiresAt:  &exp,
		})
	}
}

func TestJoin_ConsumesStake(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTrafficUsers(1, 100)

	entry, err := f.engine.Join(context.Background(), 1, model.ContestTraffic, 20)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !entry.Stake.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected stake 20, got %s", entry.Stake)
	}

	acct, _ := f.accounts.Load(context.Background(), 1)
	if acct.RemainingBytes() != 80*gb {
		t.Errorf("expected 80 GB remaining after join, got %d", acct.RemainingBytes())
	}
}

func TestJoin_SecondEntryRejected(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTrafficUsers(1, 100)

	if _, err := f.engine.Join(context.Background(), 1, model.ContestTraffic, 20); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	_, err := f.engine.Join(context.Background(), 1, model.ContestTraffic, 5)
	if !errors.Is(err, model.ErrAlreadyParticipated) {
		t.Fatalf("expected ErrAlreadyParticipated, got %v", err)
	}

	// The rejected attempt must not charge anything.
	acct, _ := f.accounts.Load(context.Background(), 1)
	if acct.RemainingBytes() != 80*gb {
		t.Errorf("second join touched the balance, remaining=%d", acct.RemainingBytes())
	}
}

func TestJoin_InsufficientBalance(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.accounts.Seed(model.Account{ID: 1, Email: "a@b.c", QuotaBytes: 10 * gb})

	_, err := f.engine.Join(context.Background(), 1, model.ContestTraffic, 20)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestJoin_InvalidStake(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTrafficUsers(1, 100)

	for _, stake := range []int{0, -1, 15, 99} {
		if _, err := f.engine.Join(context.Background(), 1, model.ContestTraffic, stake); !errors.Is(err, model.ErrInvalidStake) {
			t.Errorf("stake=%d: expected ErrInvalidStake, got %v", stake, err)
		}
	}
}

func TestJoin_TimeUnlimitedPlanRejected(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTrafficUsers(1, 100) // nil expiry

	_, err := f.engine.Join(context.Background(), 1, model.ContestTime, 1)
	if !errors.Is(err, model.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestJoin_TimeShiftsExpiryBack(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTimeUsers(1, 30)

	if _, err := f.engine.Join(context.Background(), 1, model.ContestTime, 3); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	acct, _ := f.accounts.Load(context.Background(), 1)
	want := f.now.Add(27 * 24 * time.Hour).Unix()
	if *acct.ExpiresAt != want {
		t.Errorf("expected expiry %d, got %d", want, *acct.ExpiresAt)
	}
}

func TestDraw_FiveParticipants(t *testing.T) {
	// Zero-scripted shuffle is deterministic: with ids 1..5 sorted, the
	// final order starts 2, 3, 4.
	f := newFixture(t, &rng.Scripted{})
	f.seedTrafficUsers(5, 100)

	for i := 1; i <= 5; i++ {
		if _, err := f.engine.Join(context.Background(), int64(i), model.ContestTraffic, 20); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	res, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	if !res.Pool.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected pool 100, got %s", res.Pool)
	}
	if res.ParticipantCount != 5 {
		t.Errorf("expected 5 participants, got %d", res.ParticipantCount)
	}
	if len(res.Winners) != 3 {
		t.Fatalf("expected 3 winners, got %d", len(res.Winners))
	}

	wantPrizes := []int64{50, 30, 20}
	seen := map[int64]bool{}
	for i, w := range res.Winners {
		if !w.Prize.Equal(decimal.NewFromInt(wantPrizes[i])) {
			t.Errorf("rank %d: expected prize %d, got %s", i+1, wantPrizes[i], w.Prize)
		}
		if !w.Paid {
			t.Errorf("rank %d: winner not paid", i+1)
		}
		if seen[w.UserID] {
			t.Errorf("user %d won twice", w.UserID)
		}
		seen[w.UserID] = true
	}

	// First-ranked winner staked 20 and got 50 back.
	first, _ := f.accounts.Load(context.Background(), res.Winners[0].UserID)
	if first.RemainingBytes() != 130*gb {
		t.Errorf("expected winner remaining 130 GB, got %d", first.RemainingBytes())
	}
}

func TestDraw_TwoParticipants(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTrafficUsers(2, 100)

	f.engine.Join(context.Background(), 1, model.ContestTraffic, 10)
	f.engine.Join(context.Background(), 2, model.ContestTraffic, 20)

	res, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	if len(res.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(res.Winners))
	}
	if !res.Winners[0].Prize.Equal(decimal.NewFromInt(21)) {
		t.Errorf("expected first prize 21, got %s", res.Winners[0].Prize)
	}
	if !res.Winners[1].Prize.Equal(decimal.NewFromInt(9)) {
		t.Errorf("expected second prize 9, got %s", res.Winners[1].Prize)
	}
}

func TestDraw_SingleParticipantTakesAll(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTrafficUsers(1, 100)

	f.engine.Join(context.Background(), 1, model.ContestTraffic, 10)

	res, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	if len(res.Winners) != 1 {
		t.Fatalf("expected 1 winner, got %d", len(res.Winners))
	}
	if !res.Winners[0].Prize.Equal(decimal.NewFromInt(10)) {
		t.Errorf("lone entrant must take the full pool, got %s", res.Winners[0].Prize)
	}

	acct, _ := f.accounts.Load(context.Background(), 1)
	if acct.RemainingBytes() != 100*gb {
		t.Errorf("expected balance restored to 100 GB, got %d", acct.RemainingBytes())
	}
}

func TestDraw_Idempotent(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTrafficUsers(3, 100)

	for i := 1; i <= 3; i++ {
		f.engine.Join(context.Background(), int64(i), model.ContestTraffic, 10)
	}

	first, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("first draw failed: %v", err)
	}
	if len(first.Winners) == 0 {
		t.Fatal("first draw paid nobody")
	}

	second, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("second draw failed: %v", err)
	}
	if second.ParticipantCount != 0 || len(second.Winners) != 0 {
		t.Errorf("second draw must find an empty pool, got %d participants %d winners",
			second.ParticipantCount, len(second.Winners))
	}
}

func TestDraw_EmptyPool(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})

	res, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	if res.ParticipantCount != 0 || len(res.Winners) != 0 {
		t.Errorf("empty pool must settle to nothing, got %+v", res)
	}
}

func TestDraw_TimeWholeDayPrizes(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTimeUsers(2, 30)

	f.engine.Join(context.Background(), 1, model.ContestTime, 3)
	f.engine.Join(context.Background(), 2, model.ContestTime, 7)

	res, err := f.engine.Draw(context.Background(), model.ContestTime, "2025-06-15")
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	// Pool 10 days: 70% -> 7, 30% -> 3, both whole.
	if !res.Winners[0].Prize.Equal(decimal.NewFromInt(7)) {
		t.Errorf("expected first prize 7 days, got %s", res.Winners[0].Prize)
	}
	if !res.Winners[1].Prize.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected second prize 3 days, got %s", res.Winners[1].Prize)
	}
	for _, w := range res.Winners {
		if !w.Prize.Equal(w.Prize.Round(0)) {
			t.Errorf("duration prize must be whole days, got %s", w.Prize)
		}
	}
}

func TestDraw_PartialSettlement(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTrafficUsers(2, 100)

	f.engine.Join(context.Background(), 1, model.ContestTraffic, 10)
	f.engine.Join(context.Background(), 2, model.ContestTraffic, 10)

	f.accounts.FailSaves = func(int64) error { return errors.New("connection reset") }

	_, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	var partial *model.PartialSettlementError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialSettlementError, got %v", err)
	}
	for _, w := range partial.Winners {
		if w.Paid {
			t.Errorf("winner %d reported paid despite store outage", w.UserID)
		}
	}

	// The pool is gone either way; a re-run must not pay anyone.
	f.accounts.FailSaves = nil
	res, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("re-draw failed: %v", err)
	}
	if len(res.Winners) != 0 {
		t.Errorf("re-draw after partial settlement paid %d winners", len(res.Winners))
	}
}

func TestRanking(t *testing.T) {
	f := newFixture(t, rng.New(1))
	f.seedTrafficUsers(3, 100)

	f.engine.Join(context.Background(), 1, model.ContestTraffic, 5)
	f.engine.Join(context.Background(), 2, model.ContestTraffic, 50)
	f.engine.Join(context.Background(), 3, model.ContestTraffic, 20)

	ranking, err := f.engine.Ranking(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ranking) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ranking))
	}

	wantOrder := []int64{2, 3, 1}
	for i, entry := range ranking {
		if entry.UserID != wantOrder[i] {
			t.Errorf("position %d: expected user %d, got %d", i, wantOrder[i], entry.UserID)
		}
	}
	if ranking[0].Handle != "us***@example.com" {
		t.Errorf("ranking must mask handles, got %s", ranking[0].Handle)
	}
}

func TestRanking_EmptyPool(t *testing.T) {
	f := newFixture(t, rng.New(1))

	ranking, err := f.engine.Ranking(context.Background(), model.ContestTraffic, "2025-06-15")
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ranking) != 0 {
		t.Errorf("expected empty ranking, got %d entries", len(ranking))
	}
}

func TestHistory_FoldsBothTypes(t *testing.T) {
	f := newFixture(t, &rng.Scripted{})
	f.seedTimeUsers(2, 30) // time-eligible with traffic quota too

	f.engine.Join(context.Background(), 1, model.ContestTraffic, 10)
	f.engine.Join(context.Background(), 2, model.ContestTime, 3)

	if _, err := f.engine.Draw(context.Background(), model.ContestTraffic, "2025-06-15"); err != nil {
		t.Fatalf("traffic draw failed: %v", err)
	}
	if _, err := f.engine.Draw(context.Background(), model.ContestTime, "2025-06-15"); err != nil {
		t.Fatalf("time draw failed: %v", err)
	}

	records, err := f.engine.History(context.Background(), 7)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.Date != "2025-06-15" {
		t.Errorf("expected date 2025-06-15, got %s", rec.Date)
	}
	if rec.Traffic == nil || rec.Time == nil {
		t.Fatalf("both settlements must fold into one record: %+v", rec)
	}
	if !rec.Traffic.Pool.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected traffic pool 10, got %s", rec.Traffic.Pool)
	}
	if !rec.Time.Pool.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected time pool 3, got %s", rec.Time.Pool)
	}
	if len(rec.Traffic.Winners) != 1 || rec.Traffic.Winners[0].Handle != "us***@example.com" {
		t.Errorf("archived winners must carry masked handles: %+v", rec.Traffic.Winners)
	}
}
