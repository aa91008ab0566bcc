package reward

import "errors"

var (
	// ErrUnknownReward is returned when the reward id is not in the catalog.
	ErrUnknownReward = errors.New("unknown reward")

	// ErrInsufficientPoints is returned when the balance cannot cover the
	// reward cost. Nothing is debited.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInvalidCatalog is returned when a catalog file fails validation.
	ErrInvalidCatalog = errors.New("invalid reward catalog")

	ErrInternal = errors.New("internal reward error")
)
