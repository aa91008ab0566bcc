package referral

import (
	"time"

	"github.com/google/uuid"
)

// Status is the referral lifecycle state. pending -> completed is the only
// transition; completed is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Bonus amounts, in points.
const (
	// WelcomePoints go to the referred account as soon as the code is
	// applied, unconditional on the referral ever completing.
	WelcomePoints = 50

	// BonusPoints go to the referrer exactly once, when the referred identity
	// places their first order.
	BonusPoints = 100
)

// Code is a referral code owned by exactly one account.
type Code struct {
	Code      string    `db:"code" json:"code"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Referral tracks one (code, referred identity) pair from application to
// completion.
type Referral struct {
	Code             string     `db:"code" json:"code"`
	ReferredIdentity string     `db:"referred_identity" json:"referred_identity"`
	ReferredAccount  uuid.UUID  `db:"referred_account" json:"referred_account"`
	Status           Status     `db:"status" json:"status"`
	PointsEarned     int        `db:"points_earned" json:"points_earned"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
