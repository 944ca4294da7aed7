package ports

import "errors"

// Standard application-level errors.
// Adapters and the engine wrap underlying errors with these sentinels so
// callers can classify failures with errors.Is.
var (
	// General
	ErrUnknown         = errors.New("unknown error occurred")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Validation: malformed request, rejected before any state change.
	ErrValidation = errors.New("invalid order specification")

	// Business rules: the order is set to failed, no partial effect persists.
	ErrInsufficientFunds    = errors.New("insufficient cash for order")
	ErrInsufficientPosition = errors.New("insufficient position for order")

	// Transient: the order remains pending and is eligible for retry.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// Concurrency: a concurrent operation reached a terminal state first.
	ErrConflict     = errors.New("concurrent operation conflict")
	ErrOrderNotOpen = errors.New("order is no longer pending")

	// Storage
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrTxFailed     = errors.New("database transaction failed")
)

// IsTransient reports whether the error class is retryable: a quote that was
// momentarily unavailable, a lock/commit race, or a timeout.
func IsTransient(err error) bool {
	return errors.Is(err, ErrQuoteUnavailable) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTimeout)
}
