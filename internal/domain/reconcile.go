package domain

import "time"

// ReservationExpired reports whether a pending booking's payment window has
// lapsed. Inventory counting, the expiry sweep, and payment finalization must
// all apply this same rule: a booking that no longer counts against inventory
// may not be finalized into tickets, or a late webhook could oversell seats
// another customer has since reserved.
func (b Booking) ReservationExpired(pendingTTL time.Duration, now time.Time) bool {
	if b.Status != BookingPending || pendingTTL <= 0 {
		return false
	}
	return !b.CreatedAt.After(now.Add(-pendingTTL))
}

// ReconcileAction is the decision taken for an inbound gateway notification
// given the current payment and booking state.
type ReconcileAction int

const (
	// ReconcileApply performs the transition: finalize on a completed
	// notification, cancel on a failed one.
	ReconcileApply ReconcileAction = iota

	// ReconcileSkip acknowledges the notification without mutating anything.
	// Duplicate and out-of-order deliveries land here.
	ReconcileSkip

	// ReconcileInconsistent means the stored pair violates the state machine
	// (e.g. payment still pending on a booked booking). The operation must
	// abort without partial writes.
	ReconcileInconsistent
)

// OnPaymentCompleted decides how to handle a verified "payment completed"
// notification. The transition Pending→Paid is applied at most once; any
// terminal payment state makes redelivery a no-op.
func OnPaymentCompleted(p PaymentStatus, b BookingStatus) ReconcileAction {
	switch {
	case p == PaymentPending && b == BookingPending:
		return ReconcileApply
	case p == PaymentPaid:
		// Duplicate delivery.
		return ReconcileSkip
	case p == PaymentFailed || b == BookingCancelled:
		// Completed arriving after a failed/expired terminal state is
		// out of order; once terminal, no transition is applied.
		return ReconcileSkip
	default:
		return ReconcileInconsistent
	}
}

// OnPaymentFailed decides how to handle a verified "payment failed"
// notification. A failed event never undoes a paid one.
func OnPaymentFailed(p PaymentStatus, b BookingStatus) ReconcileAction {
	switch {
	case p == PaymentPending && b == BookingPending:
		return ReconcileApply
	case p.Terminal() || b.Terminal():
		return ReconcileSkip
	default:
		return ReconcileInconsistent
	}
}
