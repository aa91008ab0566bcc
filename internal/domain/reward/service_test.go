package reward_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/reward"
)

// fakeLedger mimics the per-account critical section: the balance check and
// the append happen under one lock.
type fakeLedger struct {
	mu       sync.Mutex
	balance  int
	appended []ledger.Transaction
}

func (f *fakeLedger) AppendIf(ctx context.Context, t ledger.Transaction, minBalance int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < minBalance {
		return ledger.ErrInsufficientBalance
	}
	f.appended = append(f.appended, t)
	f.balance += t.Points
	return nil
}

func newService(balance int) (*reward.Service, *fakeLedger) {
	l := &fakeLedger{balance: balance}
	return reward.NewService(reward.DefaultCatalog(), l, reward.NewMemorySlots()), l
}

func TestRedeem(t *testing.T) {
	svc, l := newService(500)
	accountID := uuid.New()

	r, err := svc.Redeem(context.Background(), accountID, "sess-1", "save-50")
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if r.ID != "save-50" {
		t.Fatalf("applied reward = %s, want save-50", r.ID)
	}
	if l.balance != 300 {
		t.Fatalf("balance = %d, want 300", l.balance)
	}

	tx := l.appended[0]
	if tx.Kind != ledger.KindRedeemed || tx.Points != -200 {
		t.Fatalf("unexpected ledger row: kind=%s points=%d", tx.Kind, tx.Points)
	}

	applied, err := svc.AppliedReward(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("applied reward lookup failed: %v", err)
	}
	if applied == nil || applied.ID != "save-50" {
		t.Fatalf("slot = %+v, want save-50", applied)
	}
}

func TestRedeemUnknownReward(t *testing.T) {
	svc, l := newService(1000)

	_, err := svc.Redeem(context.Background(), uuid.New(), "sess-1", "no-such-reward")
	if !errors.Is(err, reward.ErrUnknownReward) {
		t.Fatalf("error = %v, want ErrUnknownReward", err)
	}
	if len(l.appended) != 0 {
		t.Fatal("unknown reward must post nothing")
	}
}

func TestRedeemInsufficientPoints(t *testing.T) {
	svc, l := newService(199)

	_, err := svc.Redeem(context.Background(), uuid.New(), "sess-1", "save-50")
	if !errors.Is(err, reward.ErrInsufficientPoints) {
		t.Fatalf("error = %v, want ErrInsufficientPoints", err)
	}
	if len(l.appended) != 0 {
		t.Fatal("failed redemption must post nothing")
	}

	applied, _ := svc.AppliedReward(context.Background(), "sess-1")
	if applied != nil {
		t.Fatal("failed redemption must not set the slot")
	}
}

func TestConcurrentRedemptionRace(t *testing.T) {
	// Balance covers exactly one save-50; two simultaneous redemptions must
	// end with one success and one ErrInsufficientPoints.
	svc, l := newService(200)
	accountID := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), accountID, "sess-race", "save-50")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, reward.ErrInsufficientPoints):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d insufficient, want 1 and 1", success, insufficient)
	}
	if l.balance != 0 {
		t.Fatalf("balance = %d, want 0", l.balance)
	}
}

func TestRedeemReplacesAppliedWithoutRefund(t *testing.T) {
	svc, l := newService(1000)
	accountID := uuid.New()

	if _, err := svc.Redeem(context.Background(), accountID, "sess-1", "save-50"); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), accountID, "sess-1", "pct-10"); err != nil {
		t.Fatalf("second redeem failed: %v", err)
	}

	// Both debits stand: 1000 - 200 - 500.
	if l.balance != 300 {
		t.Fatalf("balance = %d, want 300", l.balance)
	}

	applied, _ := svc.AppliedReward(context.Background(), "sess-1")
	if applied == nil || applied.ID != "pct-10" {
		t.Fatalf("slot = %+v, want pct-10", applied)
	}
}

func TestClearAppliedKeepsDebit(t *testing.T) {
	svc, l := newService(500)
	accountID := uuid.New()

	if _, err := svc.Redeem(context.Background(), accountID, "sess-1", "save-50"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if err := svc.ClearApplied(context.Background(), "sess-1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	applied, _ := svc.AppliedReward(context.Background(), "sess-1")
	if applied != nil {
		t.Fatal("slot should be empty after clear")
	}
	if l.balance != 300 {
		t.Fatalf("balance = %d, want 300 (clear must not refund)", l.balance)
	}
}

func TestCalculateDiscount(t *testing.T) {
	svc, _ := newService(5000)
	accountID := uuid.New()
	ctx := context.Background()

	// No applied reward.
	d, err := svc.CalculateDiscount(ctx, "empty-sess", 800)
	if err != nil || d != 0 {
		t.Fatalf("discount = %v err = %v, want 0", d, err)
	}

	// Percentage: 10% of 800.
	if _, err := svc.Redeem(ctx, accountID, "sess-pct", "pct-10"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	d, err = svc.CalculateDiscount(ctx, "sess-pct", 800)
	if err != nil || d != 80 {
		t.Fatalf("discount = %v err = %v, want 80", d, err)
	}

	// Flat discount is not clamped to the subtotal.
	if _, err := svc.Redeem(ctx, accountID, "sess-flat", "save-100"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	d, err = svc.CalculateDiscount(ctx, "sess-flat", 50)
	if err != nil || d != 100 {
		t.Fatalf("discount = %v err = %v, want 100 (unclamped flat)", d, err)
	}
}

func TestCalculateDiscountRoundsHalfUp(t *testing.T) {
	svc, _ := newService(5000)
	ctx := context.Background()

	if _, err := svc.Redeem(ctx, uuid.New(), "sess-1", "pct-10"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	// 10% of 805 = 80.5 rounds up to 81.
	d, err := svc.CalculateDiscount(ctx, "sess-1", 805)
	if err != nil || d != 81 {
		t.Fatalf("discount = %v err = %v, want 81", d, err)
	}
}
