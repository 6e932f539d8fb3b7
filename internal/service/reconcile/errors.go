package reconcile

import "errors"

var (
	// ErrInconsistentState marks a data-integrity violation between a payment
	// and its booking. The operation aborts with no partial mutation.
	ErrInconsistentState = errors.New("inconsistent booking/payment state")
)
