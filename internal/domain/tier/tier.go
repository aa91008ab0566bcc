// Package tier derives membership tiers from point balances. Everything here
// is a pure function of the balance; tiers are never persisted as
// authoritative state.
package tier

// Tier is a membership level.
type Tier string

const (
	Bronze   Tier = "bronze"
	Silver   Tier = "silver"
	Gold     Tier = "gold"
	Platinum Tier = "platinum"
)

// Thresholds are inclusive lower bounds, ascending.
const (
	silverMin   = 500
	goldMin     = 1500
	platinumMin = 3000
)

// Of maps a balance to its tier.
func Of(balance int) Tier {
	switch {
	case balance >= platinumMin:
		return Platinum
	case balance >= goldMin:
		return Gold
	case balance >= silverMin:
		return Silver
	default:
		return Bronze
	}
}

// Multiplier returns the earn multiplier for a tier.
func Multiplier(t Tier) float64 {
	switch t {
	case Silver:
		return 1.10
	case Gold:
		return 1.25
	case Platinum:
		return 1.50
	default:
		return 1.0
	}
}

// Progress describes the next tier above the current balance.
type Progress struct {
	Tier         Tier `json:"tier"`
	PointsNeeded int  `json:"points_needed"`
}

// Next returns the next tier and the points still needed to reach it, or nil
// when the balance is already platinum.
func Next(balance int) *Progress {
	switch Of(balance) {
	case Bronze:
		return &Progress{Tier: Silver, PointsNeeded: silverMin - balance}
	case Silver:
		return &Progress{Tier: Gold, PointsNeeded: goldMin - balance}
	case Gold:
		return &Progress{Tier: Platinum, PointsNeeded: platinumMin - balance}
	default:
		return nil
	}
}

var benefits = map[Tier][]string{
	Bronze: {
		"Earn 5% of every order in points",
		"Extra 5% on orders with healthy items",
	},
	Silver: {
		"All bronze benefits",
		"1.10x points multiplier on every order",
		"Birthday reward drop",
	},
	Gold: {
		"All silver benefits",
		"1.25x points multiplier on every order",
		"Free delivery on orders over ₹299",
	},
	Platinum: {
		"All gold benefits",
		"1.50x points multiplier on every order",
		"Priority support",
		"Early access to new restaurants",
	},
}

// Benefits returns the ordered benefit descriptions for a tier.
func Benefits(t Tier) []string {
	b, ok := benefits[t]
	if !ok {
		return benefits[Bronze]
	}
	out := make([]string, len(b))
	copy(out, b)
	return out
}
