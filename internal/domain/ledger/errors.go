package ledger

import "errors"

var (
	// ErrInvalidTransaction is returned when points == 0 or the kind is unknown.
	ErrInvalidTransaction = errors.New("invalid ledger transaction")

	// ErrInsufficientBalance is returned by AppendIf when the account balance
	// is below the required minimum at append time.
	ErrInsufficientBalance = errors.New("insufficient point balance")

	// ErrConcurrencyConflict marks a retryable serialization failure. It never
	// reaches callers; after bounded retries it becomes ErrTemporarilyUnavailable.
	ErrConcurrencyConflict = errors.New("concurrent ledger update conflict")

	// ErrTemporarilyUnavailable is surfaced when retries are exhausted.
	ErrTemporarilyUnavailable = errors.New("ledger temporarily unavailable")

	ErrInternal = errors.New("internal ledger error")
)
