package reward

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
)

// Ledger is the slice of the ledger store redemption needs: a conditional
// append whose balance check runs under the per-account lock.
type Ledger interface {
	AppendIf(ctx context.Context, t ledger.Transaction, minBalance int) error
}

// Service validates redemptions, debits the ledger, and manages the
// per-session applied-reward slot.
type Service struct {
	catalog *Catalog
	ledger  Ledger
	slots   SlotStore
}

func NewService(catalog *Catalog, l Ledger, slots SlotStore) *Service {
	return &Service{catalog: catalog, ledger: l, slots: slots}
}

// ListRewards returns the catalog.
func (s *Service) ListRewards() []Reward {
	return s.catalog.List()
}

// Redeem debits the reward's point cost and applies the reward to the
// checkout session. The balance check and the debit are one critical section
// per account, so two concurrent redemptions can never both pass a check that
// only one balance can afford. Redemption is non-refundable: replacing or
// clearing the applied reward later does not return the points.
func (s *Service) Redeem(ctx context.Context, accountID uuid.UUID, sessionID, rewardID string) (*Reward, error) {
	r, ok := s.catalog.Get(rewardID)
	if !ok {
		return nil, ErrUnknownReward
	}

	err := s.ledger.AppendIf(ctx, ledger.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        ledger.KindRedeemed,
		Points:      -r.PointsCost,
		Description: fmt.Sprintf("Redeemed reward: %s", r.Name),
	}, r.PointsCost)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return nil, ErrInsufficientPoints
		}
		return nil, err
	}

	if err := s.slots.Set(ctx, sessionID, r); err != nil {
		// The debit is already committed; the ledger stays consistent but the
		// session lost its discount. Surface the error so checkout can retry
		// the slot write.
		log.Error().Err(err).Str("session_id", sessionID).Msg("applied reward slot write failed after debit")
		return nil, err
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("session_id", sessionID).
		Str("reward_id", r.ID).
		Int("points_cost", r.PointsCost).
		Msg("reward redeemed")

	return &r, nil
}

// AppliedReward returns the reward currently applied to the session, nil when
// there is none.
func (s *Service) AppliedReward(ctx context.Context, sessionID string) (*Reward, error) {
	return s.slots.Get(ctx, sessionID)
}

// ClearApplied discards the session's applied reward. Points already debited
// for it are not returned.
func (s *Service) ClearApplied(ctx context.Context, sessionID string) error {
	return s.slots.Clear(ctx, sessionID)
}

// CalculateDiscount returns the discount the applied reward grants on the
// given subtotal. A flat discount is intentionally not clamped to the
// subtotal; upstream checkout has always behaved this way and callers rely
// on seeing the full reward value.
func (s *Service) CalculateDiscount(ctx context.Context, sessionID string, subtotal float64) (float64, error) {
	r, err := s.slots.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if r == nil {
		return 0, nil
	}

	switch r.DiscountKind {
	case DiscountPercentage:
		return math.Floor(subtotal*r.DiscountAmount/100 + 0.5), nil
	case DiscountFlat:
		return r.DiscountAmount, nil
	default:
		return 0, fmt.Errorf("%w: discount kind %q", ErrInternal, r.DiscountKind)
	}
}
