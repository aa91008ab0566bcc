package reward

// DiscountKind selects how a reward discounts an order.
type DiscountKind string

const (
	DiscountFlat       DiscountKind = "flat"
	DiscountPercentage DiscountKind = "percentage"
)

func (k DiscountKind) Valid() bool {
	return k == DiscountFlat || k == DiscountPercentage
}

// Reward is one redeemable catalog entry. The catalog is immutable at runtime.
type Reward struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	PointsCost     int          `json:"points_cost" yaml:"points_cost"`
	DiscountKind   DiscountKind `json:"discount_kind" yaml:"discount_kind"`
	DiscountAmount float64      `json:"discount_amount" yaml:"discount_amount"`
}
