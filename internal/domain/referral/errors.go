package referral

import "errors"

var (
	// ErrSelfReferral is returned when an account applies its own code.
	ErrSelfReferral = errors.New("cannot apply your own referral code")

	// ErrInvalidCodeFormat is returned when a code fails the prefix/length check.
	ErrInvalidCodeFormat = errors.New("invalid referral code format")

	// ErrCodeNotFound is returned when a well-formed code is not registered.
	ErrCodeNotFound = errors.New("referral code not found")

	// ErrCodeGenerationFailed is returned when the bounded collision-retry
	// loop exhausts its attempts.
	ErrCodeGenerationFailed = errors.New("referral code generation failed")

	// ErrCodeTaken marks a code collision; internal, always retried.
	ErrCodeTaken = errors.New("referral code already taken")

	ErrInternal = errors.New("internal referral error")
)
