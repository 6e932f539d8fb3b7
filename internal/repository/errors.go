package repository

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrNoVenueConfigured     = errors.New("event has no venue configured")
	ErrInconsistentState     = errors.New("inconsistent booking/payment state")
)
