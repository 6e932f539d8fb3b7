package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaminskyi/eventbook/internal/domain"
	"github.com/kaminskyi/eventbook/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to TEST_DATABASE_URL and applies the schema. Tests are
// skipped when the variable is unset so the suite stays runnable without a
// database.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err = pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	// Each test starts from an empty database; the expiry sweep scans every
	// pending booking, so leftovers from a previous test would skew counts.
	_, err = pool.Exec(ctx,
		`TRUNCATE venues, events, bookings, payments, tickets, loyalty_balances, audit_log
		 RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return NewStore(pool)
}

func createEvent(t *testing.T, s *Store, capacity int64, priceCents int64) int64 {
	t.Helper()

	ctx := context.Background()

	var venueID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO venues(name, capacity) VALUES ($1, $2) RETURNING id`,
		"hall-"+uuid.NewString(), capacity,
	).Scan(&venueID)
	require.NoError(t, err)

	var eventID int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO events(venue_id, organizer, title, price_cents, starts_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		venueID, "org", "show-"+uuid.NewString(), priceCents, time.Now().Add(24*time.Hour),
	).Scan(&eventID)
	require.NoError(t, err)

	return eventID
}

func reserve(t *testing.T, s *Store, eventID int64, customer string, qty int) *domain.BookingWithPayment {
	t.Helper()

	bw, err := s.Inventory().ReserveBooking(context.Background(), ReserveParams{
		CustomerID: customer,
		EventID:    eventID,
		Quantity:   qty,
		PendingTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	return bw
}

func attachSession(t *testing.T, s *Store, bookingID uuid.UUID) string {
	t.Helper()

	sessionID := "cs_" + uuid.NewString()
	require.NoError(t, s.Bookings().AttachSession(context.Background(), bookingID, sessionID))
	return sessionID
}

func TestReserveBooking_NoOversell(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 5, 1000)

	bw := reserve(t, s, eventID, "alice", 3)
	assert.Equal(t, domain.BookingPending, bw.Booking.Status)
	assert.Equal(t, int64(3000), bw.Booking.TotalCents)
	assert.Equal(t, domain.PaymentPending, bw.Payment.Status)

	_, err := s.Inventory().ReserveBooking(context.Background(), ReserveParams{
		CustomerID: "bob",
		EventID:    eventID,
		Quantity:   3,
		PendingTTL: 15 * time.Minute,
	})
	require.ErrorIs(t, err, repository.ErrInsufficientInventory)

	av, err := s.Inventory().Availability(context.Background(), eventID, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), av.Capacity)
	assert.Equal(t, int64(3), av.Pending)
	assert.Equal(t, int64(2), av.Available)
}

func TestReserveBooking_ConcurrentLastSeat(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 1, 500)

	const attempts = 4

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			for retry := 0; retry < 10; retry++ {
				_, err := s.Inventory().ReserveBooking(context.Background(), ReserveParams{
					CustomerID: uuid.NewString(),
					EventID:    eventID,
					Quantity:   1,
					PendingTTL: 15 * time.Minute,
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				if IsRetryable(err) {
					continue
				}
				return
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one reservation may win the last seat")
}

func TestReserveBooking_NoVenue(t *testing.T) {
	s := testStore(t)

	ctx := context.Background()

	var eventID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events(venue_id, organizer, title, price_cents, starts_at)
		 VALUES (NULL, $1, $2, $3, $4) RETURNING id`,
		"org", "open-air-"+uuid.NewString(), 700, time.Now().Add(24*time.Hour),
	).Scan(&eventID)
	require.NoError(t, err)

	_, err = s.Inventory().ReserveBooking(ctx, ReserveParams{
		CustomerID: "carol",
		EventID:    eventID,
		Quantity:   2,
		PendingTTL: 15 * time.Minute,
	})
	require.ErrorIs(t, err, repository.ErrNoVenueConfigured)

	bw, err := s.Inventory().ReserveBooking(ctx, ReserveParams{
		CustomerID:            "carol",
		EventID:               eventID,
		Quantity:              2,
		PendingTTL:            15 * time.Minute,
		UnboundedWithoutVenue: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1400), bw.Booking.TotalCents)
}

func TestFinalizeBySession_DuplicateDelivery(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 10, 1000)

	customer := "dup-" + uuid.NewString()
	bw := reserve(t, s, eventID, customer, 2)
	sessionID := attachSession(t, s, bw.Booking.ID)

	ctx := context.Background()

	out, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Equal(t, domain.BookingBooked, out.Booking.Status)
	assert.Len(t, out.Tickets, 2)
	assert.Equal(t, int64(1), out.LoyaltyPoints)

	// Redelivery is a no-op: no extra tickets, no extra points.
	again, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, again.Applied)

	tickets, err := s.Bookings().ListTickets(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	lb, err := s.Loyalty().Balance(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lb.Points)
}

func TestFailBySession_AfterCompletionIsNoOp(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 10, 1000)

	bw := reserve(t, s, eventID, "erin-"+uuid.NewString(), 1)
	sessionID := attachSession(t, s, bw.Booking.ID)

	ctx := context.Background()

	_, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
	require.NoError(t, err)

	out, err := s.Reconcile().FailBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, out.Applied)

	got, err := s.Bookings().GetWithPayment(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingBooked, got.Booking.Status)
	assert.Equal(t, domain.PaymentPaid, got.Payment.Status)
}

func TestFailBySession_ReleasesReservation(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 2, 1000)

	bw := reserve(t, s, eventID, "frank-"+uuid.NewString(), 2)
	sessionID := attachSession(t, s, bw.Booking.ID)

	ctx := context.Background()

	out, err := s.Reconcile().FailBySession(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Equal(t, domain.BookingCancelled, out.Booking.Status)

	av, err := s.Inventory().Availability(ctx, eventID, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), av.Available)

	// The freed quantity is bookable again.
	reserve(t, s, eventID, "grace-"+uuid.NewString(), 2)
}

func TestExpirePending_ReleasesReservation(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 3, 1000)

	bw := reserve(t, s, eventID, "heidi-"+uuid.NewString(), 3)

	ctx := context.Background()

	// Cutoff in the future expires everything pending right now.
	expired, err := s.Reconcile().ExpirePending(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, bw.Booking.ID, expired[0].BookingID)
	assert.Equal(t, eventID, expired[0].EventID)

	got, err := s.Bookings().GetWithPayment(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Booking.Status)
	assert.Equal(t, domain.PaymentFailed, got.Payment.Status)

	av, err := s.Inventory().Availability(ctx, eventID, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), av.Available)
}

func TestFinalizeBySession_ExpiredReservation(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 2, 1000)

	bw := reserve(t, s, eventID, "kate-"+uuid.NewString(), 2)
	sessionID := attachSession(t, s, bw.Booking.ID)

	ctx := context.Background()

	// Age the reservation past its payment window. Inventory counting no
	// longer sees it, so another customer can take the seats.
	_, err := s.pool.Exec(ctx,
		`UPDATE bookings SET created_at = now() - interval '2 hours' WHERE id = $1`,
		bw.Booking.ID)
	require.NoError(t, err)

	other := reserve(t, s, eventID, "leo-"+uuid.NewString(), 2)

	// A late completed notification must not issue tickets for the stale
	// booking; that would put 4 attendees in a 2-seat venue.
	out, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.True(t, out.Expired)

	got, err := s.Bookings().GetWithPayment(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Booking.Status)
	assert.Equal(t, domain.PaymentFailed, got.Payment.Status)

	tickets, err := s.Bookings().ListTickets(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	// The live reservation is untouched and still finalizable.
	otherSession := attachSession(t, s, other.Booking.ID)
	out2, err := s.Reconcile().FinalizeBySession(ctx, otherSession, 1, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, out2.Applied)
}

func TestExpirePending_AtomicWithinTx(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 3, 1000)

	bw := reserve(t, s, eventID, "mia-"+uuid.NewString(), 1)

	ctx := context.Background()
	boom := errors.New("boom")

	// Both status updates share the enclosing transaction: if it rolls back,
	// neither the booking cancellation nor the payment failure sticks.
	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		expired, err := s.Reconcile().With(tx).ExpirePending(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Bookings().GetWithPayment(ctx, bw.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Booking.Status)
	assert.Equal(t, domain.PaymentPending, got.Payment.Status)
}

func TestFinalizeBySession_UnknownSession(t *testing.T) {
	s := testStore(t)

	_, err := s.Reconcile().FinalizeBySession(context.Background(), "cs_missing_"+uuid.NewString(), 1, 15*time.Minute)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoyalty_AccumulatesAcrossBookings(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 10, 1000)

	customer := "ivan-" + uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		bw := reserve(t, s, eventID, customer, 1)
		sessionID := attachSession(t, s, bw.Booking.ID)
		out, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
		require.NoError(t, err)
		require.True(t, out.Applied)
	}

	lb, err := s.Loyalty().Balance(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lb.Points)
}

func TestAttachSession_RequiresPendingPayment(t *testing.T) {
	s := testStore(t)
	eventID := createEvent(t, s, 10, 1000)

	bw := reserve(t, s, eventID, "judy-"+uuid.NewString(), 1)
	sessionID := attachSession(t, s, bw.Booking.ID)

	ctx := context.Background()

	_, err := s.Reconcile().FinalizeBySession(ctx, sessionID, 1, 15*time.Minute)
	require.NoError(t, err)

	// Once paid, a new session may not be attached.
	err = s.Bookings().AttachSession(ctx, bw.Booking.ID, "cs_late_"+uuid.NewString())
	require.ErrorIs(t, err, repository.ErrNotFound)
}
