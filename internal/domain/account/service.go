package account

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/points"
	"github.com/forkful/loyalty-api/internal/domain/referral"
	"github.com/forkful/loyalty-api/internal/domain/reward"
	"github.com/forkful/loyalty-api/internal/domain/tier"
)

// ErrExportDisabled is returned when no export bucket is configured.
var ErrExportDisabled = errors.New("ledger export is not configured")

const defaultHistoryLimit = 50

// LedgerReader is the read-only slice of the ledger store the facade needs.
type LedgerReader interface {
	BalanceOf(ctx context.Context, accountID uuid.UUID) (int, error)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]ledger.Transaction, error)
}

// Exporter uploads a full ledger statement and returns its storage key.
type Exporter interface {
	Export(ctx context.Context, accountID uuid.UUID, transactions []ledger.Transaction) (string, error)
}

// Service is the single entry point the checkout flow and UI call. It owns no
// state itself; it orchestrates the ledger, tier resolution, points engine,
// redemption, and referrals.
type Service struct {
	ledger    LedgerReader
	points    *points.Engine
	rewards   *reward.Service
	referrals *referral.Service
	exporter  Exporter // nil when export is disabled
}

func NewService(l LedgerReader, p *points.Engine, rw *reward.Service, rf *referral.Service, ex Exporter) *Service {
	return &Service{ledger: l, points: p, rewards: rw, referrals: rf, exporter: ex}
}

func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.ledger.BalanceOf(ctx, accountID)
}

// TierInfo is the derived membership view: tier, its perks, and progress to
// the next tier.
type TierInfo struct {
	Balance    int            `json:"balance"`
	Tier       tier.Tier      `json:"tier"`
	Multiplier float64        `json:"multiplier"`
	Benefits   []string       `json:"benefits"`
	Next       *tier.Progress `json:"next,omitempty"`
}

func (s *Service) GetTier(ctx context.Context, accountID uuid.UUID) (*TierInfo, error) {
	balance, err := s.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	current := tier.Of(balance)
	return &TierInfo{
		Balance:    balance,
		Tier:       current,
		Multiplier: tier.Multiplier(current),
		Benefits:   tier.Benefits(current),
		Next:       tier.Next(balance),
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.ledger.History(ctx, accountID, limit)
}

func (s *Service) EarnForOrder(ctx context.Context, accountID uuid.UUID, orderID string, orderTotal float64, hasHealthyItems bool) (int, error) {
	return s.points.Earn(ctx, accountID, orderID, orderTotal, hasHealthyItems)
}

func (s *Service) ListRewards() []reward.Reward {
	return s.rewards.ListRewards()
}

func (s *Service) Redeem(ctx context.Context, accountID uuid.UUID, sessionID, rewardID string) (*reward.Reward, error) {
	return s.rewards.Redeem(ctx, accountID, sessionID, rewardID)
}

func (s *Service) ClearApplied(ctx context.Context, sessionID string) error {
	return s.rewards.ClearApplied(ctx, sessionID)
}

func (s *Service) CalculateDiscount(ctx context.Context, sessionID string, subtotal float64) (float64, error) {
	return s.rewards.CalculateDiscount(ctx, sessionID, subtotal)
}

func (s *Service) IssueReferralCode(ctx context.Context, accountID uuid.UUID) (string, error) {
	return s.referrals.IssueCode(ctx, accountID)
}

func (s *Service) ApplyReferralCode(ctx context.Context, code string, referredAccount uuid.UUID, referredIdentity string) error {
	return s.referrals.ApplyCode(ctx, code, referredAccount, referredIdentity)
}

func (s *Service) CompleteReferral(ctx context.Context, referredIdentity string) error {
	return s.referrals.Complete(ctx, referredIdentity)
}

// ExportHistory uploads the account's complete ledger history for audit and
// returns the storage key.
func (s *Service) ExportHistory(ctx context.Context, accountID uuid.UUID) (string, error) {
	if s.exporter == nil {
		return "", ErrExportDisabled
	}
	history, err := s.ledger.History(ctx, accountID, 0)
	if err != nil {
		return "", err
	}
	return s.exporter.Export(ctx, accountID, history)
}
