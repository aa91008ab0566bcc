package account_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/forkful/loyalty-api/internal/domain/account"
	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/points"
	"github.com/forkful/loyalty-api/internal/domain/referral"
	"github.com/forkful/loyalty-api/internal/domain/reward"
	"github.com/forkful/loyalty-api/internal/domain/tier"
)

// memLedger is an in-memory ledger with the same contract as the Postgres
// store: append-only rows, balance as a fold, check-then-append under lock.
type memLedger struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]ledger.Transaction
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[uuid.UUID][]ledger.Transaction)}
}

func (m *memLedger) balanceLocked(accountID uuid.UUID) int {
	sum := 0
	for _, t := range m.rows[accountID] {
		sum += t.Points
	}
	return sum
}

func (m *memLedger) Append(ctx context.Context, t ledger.Transaction) error {
	if t.Points == 0 || !t.Kind.Valid() {
		return ledger.ErrInvalidTransaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.AccountID] = append(m.rows[t.AccountID], t)
	return nil
}

func (m *memLedger) AppendIf(ctx context.Context, t ledger.Transaction, minBalance int) error {
	if t.Points == 0 || !t.Kind.Valid() {
		return ledger.ErrInvalidTransaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceLocked(t.AccountID) < minBalance {
		return ledger.ErrInsufficientBalance
	}
	m.rows[t.AccountID] = append(m.rows[t.AccountID], t)
	return nil
}

func (m *memLedger) BalanceOf(ctx context.Context, accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(accountID), nil
}

func (m *memLedger) History(ctx context.Context, accountID uuid.UUID, limit int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[accountID]
	out := make([]ledger.Transaction, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// memReferralRepo posts bonuses straight into the shared ledger, mirroring
// the Postgres repository's transactional behavior.
type memReferralRepo struct {
	mu      sync.Mutex
	ledger  *memLedger
	codes   map[string]uuid.UUID
	byOwner map[uuid.UUID]string
	pending map[string]pendingRef
	done    map[string]bool
}

type pendingRef struct {
	code    string
	account uuid.UUID
}

func newMemReferralRepo(l *memLedger) *memReferralRepo {
	return &memReferralRepo{
		ledger:  l,
		codes:   make(map[string]uuid.UUID),
		byOwner: make(map[uuid.UUID]string),
		pending: make(map[string]pendingRef),
		done:    make(map[string]bool),
	}
}

func (r *memReferralRepo) CodeByAccount(ctx context.Context, accountID uuid.UUID) (*referral.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byOwner[accountID]
	if !ok {
		return nil, nil
	}
	return &referral.Code{Code: code, AccountID: accountID}, nil
}

func (r *memReferralRepo) CodeOwner(ctx context.Context, code string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.codes[code]
	if !ok {
		return uuid.Nil, referral.ErrCodeNotFound
	}
	return owner, nil
}

func (r *memReferralRepo) InsertCode(ctx context.Context, accountID uuid.UUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.codes[code]; taken {
		return referral.ErrCodeTaken
	}
	r.codes[code] = accountID
	r.byOwner[accountID] = code
	return nil
}

func (r *memReferralRepo) CreatePending(ctx context.Context, code string, referredAccount uuid.UUID, referredIdentity string) (bool, error) {
	r.mu.Lock()
	if _, exists := r.pending[referredIdentity]; exists || r.done[referredIdentity] {
		r.mu.Unlock()
		return false, nil
	}
	r.pending[referredIdentity] = pendingRef{code: code, account: referredAccount}
	r.mu.Unlock()

	err := r.ledger.Append(ctx, ledger.Transaction{
		ID:        uuid.New(),
		AccountID: referredAccount,
		Kind:      ledger.KindReferralWelcome,
		Points:    referral.WelcomePoints,
	})
	return true, err
}

func (r *memReferralRepo) Complete(ctx context.Context, referredIdentity string) (bool, uuid.UUID, error) {
	r.mu.Lock()
	p, ok := r.pending[referredIdentity]
	if !ok {
		r.mu.Unlock()
		return false, uuid.Nil, nil
	}
	delete(r.pending, referredIdentity)
	r.done[referredIdentity] = true
	referrer := r.codes[p.code]
	r.mu.Unlock()

	err := r.ledger.Append(ctx, ledger.Transaction{
		ID:        uuid.New(),
		AccountID: referrer,
		Kind:      ledger.KindReferralBonus,
		Points:    referral.BonusPoints,
	})
	return true, referrer, err
}

func newFacade(t *testing.T) (*account.Service, *memLedger) {
	t.Helper()
	l := newMemLedger()
	svc := account.NewService(
		l,
		points.NewEngine(l),
		reward.NewService(reward.DefaultCatalog(), l, reward.NewMemorySlots()),
		referral.NewService(newMemReferralRepo(l), referral.NewGenerator(rand.NewSource(1))),
		nil,
	)
	return svc, l
}

func TestLedgerIntegrityAcrossOperations(t *testing.T) {
	svc, l := newFacade(t)
	ctx := context.Background()
	accountID := uuid.New()

	if _, err := svc.EarnForOrder(ctx, accountID, "ord-1", 5000, true); err != nil {
		t.Fatalf("earn failed: %v", err)
	}
	if _, err := svc.Redeem(ctx, accountID, "sess-1", "save-50"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if _, err := svc.EarnForOrder(ctx, accountID, "ord-2", 1200, false); err != nil {
		t.Fatalf("earn failed: %v", err)
	}

	// Balance must always equal the fold over the full history.
	balance, err := svc.GetBalance(ctx, accountID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	history, err := l.History(ctx, accountID, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	sum := 0
	for _, tx := range history {
		sum += tx.Points
	}
	if balance != sum {
		t.Fatalf("balance %d != history fold %d", balance, sum)
	}
}

func TestTierProgressionFromEarns(t *testing.T) {
	svc, _ := newFacade(t)
	ctx := context.Background()
	accountID := uuid.New()

	info, err := svc.GetTier(ctx, accountID)
	if err != nil {
		t.Fatalf("get tier failed: %v", err)
	}
	if info.Tier != tier.Bronze || info.Next == nil || info.Next.Tier != tier.Silver {
		t.Fatalf("fresh account tier = %+v, want bronze progressing to silver", info)
	}

	// 10000 with healthy items at bronze: 500 + 500 earns 1000 points.
	awarded, err := svc.EarnForOrder(ctx, accountID, "ord-1", 10000, true)
	if err != nil {
		t.Fatalf("earn failed: %v", err)
	}
	if awarded != 1000 {
		t.Fatalf("awarded = %d, want 1000", awarded)
	}

	info, err = svc.GetTier(ctx, accountID)
	if err != nil {
		t.Fatalf("get tier failed: %v", err)
	}
	if info.Tier != tier.Silver {
		t.Fatalf("tier = %s, want silver", info.Tier)
	}
	if info.Next == nil || info.Next.Tier != tier.Gold || info.Next.PointsNeeded != 500 {
		t.Fatalf("next = %+v, want gold in 500", info.Next)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	svc, _ := newFacade(t)
	ctx := context.Background()
	accountID := uuid.New()

	for _, order := range []string{"ord-1", "ord-2", "ord-3"} {
		if _, err := svc.EarnForOrder(ctx, accountID, order, 100, false); err != nil {
			t.Fatalf("earn failed: %v", err)
		}
	}

	transactions, err := svc.ListTransactions(ctx, accountID, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(transactions))
	}
	if *transactions[0].RelatedOrderID != "ord-3" || *transactions[1].RelatedOrderID != "ord-2" {
		t.Fatalf("transactions not newest first: %v, %v",
			*transactions[0].RelatedOrderID, *transactions[1].RelatedOrderID)
	}
}

func TestReferralFlowThroughFacade(t *testing.T) {
	svc, _ := newFacade(t)
	ctx := context.Background()

	referrer := uuid.New()
	referred := uuid.New()

	code, err := svc.IssueReferralCode(ctx, referrer)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := svc.ApplyReferralCode(ctx, code, referred, "friend@mail.dev"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Welcome bonus is immediate and unconditional.
	balance, _ := svc.GetBalance(ctx, referred)
	if balance != referral.WelcomePoints {
		t.Fatalf("referred balance = %d, want %d", balance, referral.WelcomePoints)
	}
	if balance, _ := svc.GetBalance(ctx, referrer); balance != 0 {
		t.Fatalf("referrer balance = %d before completion, want 0", balance)
	}

	// First order completes the referral and pays the referrer once.
	if err := svc.CompleteReferral(ctx, "friend@mail.dev"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := svc.CompleteReferral(ctx, "friend@mail.dev"); err != nil {
		t.Fatalf("repeat complete failed: %v", err)
	}

	balance, _ = svc.GetBalance(ctx, referrer)
	if balance != referral.BonusPoints {
		t.Fatalf("referrer balance = %d, want exactly %d", balance, referral.BonusPoints)
	}
}

func TestExportDisabled(t *testing.T) {
	svc, _ := newFacade(t)

	_, err := svc.ExportHistory(context.Background(), uuid.New())
	if !errors.Is(err, account.ErrExportDisabled) {
		t.Fatalf("error = %v, want ErrExportDisabled", err)
	}
}
