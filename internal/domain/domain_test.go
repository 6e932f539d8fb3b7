package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable(t *testing.T) {
	assert.Equal(t, int64(4), Available(10, 0, 6))
	assert.Equal(t, int64(0), Available(10, 6, 4))
	assert.Equal(t, int64(10), Available(10, 0, 0))

	// Oversubscription from already-expired rows must clamp, never go negative.
	assert.Equal(t, int64(0), Available(10, 8, 5))
}

func TestTotalCents(t *testing.T) {
	assert.Equal(t, int64(7500), TotalCents(2500, 3))
	assert.Equal(t, int64(0), TotalCents(2500, 0))
}

func TestTicketTokenUnique(t *testing.T) {
	a := TicketToken("cust-1", 42)
	b := TicketToken("cust-1", 42)

	require.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "cust-1_42_"))
}

func TestSeatLabel(t *testing.T) {
	assert.Equal(t, "T-1", SeatLabel(1))
	assert.Equal(t, "T-12", SeatLabel(12))
}

func TestOnPaymentCompleted(t *testing.T) {
	cases := []struct {
		name    string
		payment PaymentStatus
		booking BookingStatus
		want    ReconcileAction
	}{
		{"pending booking finalizes", PaymentPending, BookingPending, ReconcileApply},
		{"duplicate delivery is a no-op", PaymentPaid, BookingBooked, ReconcileSkip},
		{"completed after failed is ignored", PaymentFailed, BookingCancelled, ReconcileSkip},
		{"completed after expiry sweep is ignored", PaymentPending, BookingCancelled, ReconcileSkip},
		{"booked booking with pending payment is corrupt", PaymentPending, BookingBooked, ReconcileInconsistent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OnPaymentCompleted(tc.payment, tc.booking))
		})
	}
}

func TestOnPaymentCompletedIdempotent(t *testing.T) {
	// Applying the transition and replaying the same notification must not
	// request a second application.
	require.Equal(t, ReconcileApply, OnPaymentCompleted(PaymentPending, BookingPending))
	require.Equal(t, ReconcileSkip, OnPaymentCompleted(PaymentPaid, BookingBooked))
}

func TestOnPaymentFailed(t *testing.T) {
	cases := []struct {
		name    string
		payment PaymentStatus
		booking BookingStatus
		want    ReconcileAction
	}{
		{"pending booking cancels", PaymentPending, BookingPending, ReconcileApply},
		{"failed after paid is ignored", PaymentPaid, BookingBooked, ReconcileSkip},
		{"duplicate failed is a no-op", PaymentFailed, BookingCancelled, ReconcileSkip},
		{"failed after expiry sweep is a no-op", PaymentPending, BookingCancelled, ReconcileSkip},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OnPaymentFailed(tc.payment, tc.booking))
		})
	}
}

func TestReservationExpired(t *testing.T) {
	now := time.Now()
	ttl := 15 * time.Minute

	pending := func(age time.Duration) Booking {
		return Booking{Status: BookingPending, CreatedAt: now.Add(-age)}
	}

	assert.False(t, pending(time.Minute).ReservationExpired(ttl, now))
	assert.True(t, pending(ttl).ReservationExpired(ttl, now))
	assert.True(t, pending(2*time.Hour).ReservationExpired(ttl, now))

	// Terminal bookings are never "expired"; their state already settled.
	booked := Booking{Status: BookingBooked, CreatedAt: now.Add(-2 * time.Hour)}
	assert.False(t, booked.ReservationExpired(ttl, now))

	// A zero TTL disables the window entirely.
	assert.False(t, pending(2*time.Hour).ReservationExpired(0, now))
}

func TestReservationExpiredMatchesInventoryCutoff(t *testing.T) {
	// A pending booking old enough to stop counting against inventory must
	// also be refused finalization, or a late payment confirmation could
	// issue tickets for seats another customer has since reserved.
	now := time.Now()
	ttl := 15 * time.Minute
	b := Booking{Status: BookingPending, CreatedAt: now.Add(-2 * time.Hour)}

	cutoff := now.Add(-ttl)
	countsAsPending := b.CreatedAt.After(cutoff)

	require.False(t, countsAsPending)
	require.True(t, b.ReservationExpired(ttl, now))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, BookingPending.Terminal())
	assert.True(t, BookingBooked.Terminal())
	assert.True(t, BookingCancelled.Terminal())

	assert.False(t, PaymentPending.Terminal())
	assert.True(t, PaymentPaid.Terminal())
	assert.True(t, PaymentFailed.Terminal())
}
