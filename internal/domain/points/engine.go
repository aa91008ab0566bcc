package points

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/tier"
)

// ErrInvalidAmount is returned when the order total is zero or negative.
var ErrInvalidAmount = errors.New("invalid order total")

const (
	baseRate    = 0.05
	healthyRate = 0.05
)

// Ledger is the slice of the ledger store the engine needs.
type Ledger interface {
	BalanceOf(ctx context.Context, accountID uuid.UUID) (int, error)
	Append(ctx context.Context, t ledger.Transaction) error
}

// Engine computes and posts earn transactions for completed orders.
type Engine struct {
	ledger Ledger
}

func NewEngine(l Ledger) *Engine {
	return &Engine{ledger: l}
}

// Earn awards points for a completed order: 5% of the total, another 5% when
// the order contains healthy items, scaled by the multiplier of the tier the
// account held before this transaction posts. Each stage rounds half-up.
func (e *Engine) Earn(ctx context.Context, accountID uuid.UUID, orderID string, orderTotal float64, hasHealthyItems bool) (int, error) {
	if orderTotal <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := e.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return 0, err
	}
	currentTier := tier.Of(balance)

	base := roundHalfUp(orderTotal * baseRate)
	healthyBonus := 0
	if hasHealthyItems {
		healthyBonus = roundHalfUp(orderTotal * healthyRate)
	}
	awarded := roundHalfUp(float64(base+healthyBonus) * tier.Multiplier(currentTier))

	// Tiny orders can round to zero; the ledger rejects zero-point rows, so
	// there is nothing to post.
	if awarded == 0 {
		return 0, nil
	}

	err = e.ledger.Append(ctx, ledger.Transaction{
		ID:             uuid.New(),
		AccountID:      accountID,
		Kind:           ledger.KindEarned,
		Points:         awarded,
		Description:    fmt.Sprintf("Points earned for order %s", orderID),
		RelatedOrderID: &orderID,
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("account_id", accountID.String()).
		Str("order_id", orderID).
		Str("tier", string(currentTier)).
		Int("points", awarded).
		Msg("earn transaction posted")

	return awarded, nil
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
