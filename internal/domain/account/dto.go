package account

type earnRequest struct {
	OrderID         string  `json:"order_id" validate:"required"`
	OrderTotal      float64 `json:"order_total" validate:"required,gt=0"`
	HasHealthyItems bool    `json:"has_healthy_items"`
}

type redeemRequest struct {
	RewardID  string `json:"reward_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

type applyReferralRequest struct {
	Code     string `json:"code" validate:"required"`
	Identity string `json:"identity" validate:"required,email"`
}

type completeReferralRequest struct {
	Identity string `json:"identity" validate:"required,email"`
}
