package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindEarned          Kind = "earned"
	KindRedeemed        Kind = "redeemed"
	KindReferralBonus   Kind = "referral_bonus"
	KindReferralWelcome Kind = "referral_welcome"
)

// Valid reports whether k is one of the recognized transaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEarned, KindRedeemed, KindReferralBonus, KindReferralWelcome:
		return true
	}
	return false
}

// Transaction is one immutable ledger row. Points are signed: positive for
// earn and referral bonuses, negative for redemptions. An account's balance
// is always the sum of its transactions, never stored separately.
type Transaction struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AccountID      uuid.UUID `db:"account_id" json:"account_id"`
	Kind           Kind      `db:"kind" json:"kind"`
	Points         int       `db:"points" json:"points"`
	Description    string    `db:"description" json:"description"`
	RelatedOrderID *string   `db:"related_order_id" json:"related_order_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
