package booking

import "errors"

var (
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrEventNotFound         = errors.New("event not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrInsufficientInventory = errors.New("not enough tickets available")
	ErrNoVenueConfigured     = errors.New("event has no venue configured")
	ErrAlreadyPaid           = errors.New("booking already paid")
	ErrBookingNotPending     = errors.New("booking is not pending")
	ErrSessionInProgress     = errors.New("payment session creation in progress")
	ErrRateLimited           = errors.New("rate limited")
)
