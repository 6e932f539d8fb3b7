package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaminskyi/eventbook/internal/domain"
	"github.com/kaminskyi/eventbook/internal/repository"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *InventoryRepo) With(db DB) *InventoryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *InventoryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// ReserveParams describes a reservation request against an event's inventory.
type ReserveParams struct {
	CustomerID string
	EventID    int64
	Quantity   int

	// PendingTTL bounds how long a pending booking keeps counting against
	// inventory. Pending bookings older than this are treated as expired.
	PendingTTL time.Duration

	// UnboundedWithoutVenue treats an event with no venue as having unlimited
	// capacity. When false such events cannot be booked.
	UnboundedWithoutVenue bool
}

// ReserveBooking atomically checks the event's remaining capacity and, when
// the requested quantity fits, persists a pending booking together with its
// pending payment. The capacity read and the insert run in one serializable
// transaction so two concurrent requests for the last seats cannot both
// succeed.
//
// Returns:
//   - repository.ErrInvalidQuantity when quantity < 1.
//   - repository.ErrNotFound when the event does not exist.
//   - repository.ErrNoVenueConfigured when the event has no venue and
//     unbounded capacity is not enabled.
//   - repository.ErrInsufficientInventory when the quantity does not fit.
func (r *InventoryRepo) ReserveBooking(ctx context.Context, p ReserveParams) (*domain.BookingWithPayment, error) {
	const op = "postgres.InventoryRepo.ReserveBooking"

	if r.db != nil {
		bw, err := r.reserveCore(ctx, r.db, p)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return bw, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	bw, err := r.reserveCore(ctx, tx, p)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return bw, nil
}

// Availability reports the inventory counters for an event, applying the same
// pending-expiry cutoff as ReserveBooking so callers observe a consistent
// reservation rule.
func (r *InventoryRepo) Availability(
	ctx context.Context,
	eventID int64,
	pendingTTL time.Duration,
) (*domain.Availability, error) {
	const op = "postgres.InventoryRepo.Availability"

	db := r.handle()

	var capacity *int64
	err := db.QueryRow(ctx,
		`SELECT v.capacity
       	 FROM events e
       	 LEFT JOIN venues v ON v.id = e.venue_id
      	 WHERE e.id = $1`,
		eventID,
	).Scan(&capacity)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	booked, pending, err := r.countReserved(ctx, db, eventID, time.Now().Add(-pendingTTL))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	av := &domain.Availability{Booked: booked, Pending: pending}
	if capacity != nil {
		av.Capacity = *capacity
		av.Available = domain.Available(*capacity, booked, pending)
	}

	return av, nil
}

func (r *InventoryRepo) reserveCore(ctx context.Context, db DB, p ReserveParams) (*domain.BookingWithPayment, error) {
	if p.Quantity < 1 {
		return nil, repository.ErrInvalidQuantity
	}

	var priceCents int64
	var capacity *int64

	err := db.QueryRow(ctx,
		`SELECT e.price_cents, v.capacity
       	 FROM events e
       	 LEFT JOIN venues v ON v.id = e.venue_id
      	 WHERE e.id = $1`,
		p.EventID,
	).Scan(&priceCents, &capacity)
	if err != nil {
		return nil, err
	}

	if capacity == nil && !p.UnboundedWithoutVenue {
		return nil, repository.ErrNoVenueConfigured
	}

	if capacity != nil {
		booked, pending, err := r.countReserved(ctx, db, p.EventID, time.Now().Add(-p.PendingTTL))
		if err != nil {
			return nil, err
		}

		if int64(p.Quantity) > domain.Available(*capacity, booked, pending) {
			return nil, repository.ErrInsufficientInventory
		}
	}

	booking := domain.Booking{
		ID:         uuid.New(),
		CustomerID: p.CustomerID,
		EventID:    p.EventID,
		Quantity:   p.Quantity,
		TotalCents: domain.TotalCents(priceCents, p.Quantity),
		Status:     domain.BookingPending,
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, customer_id, event_id, quantity, total_cents, status)
       	 VALUES ($1, $2, $3, $4, $5, $6)
     	 RETURNING created_at`,
		booking.ID, booking.CustomerID, booking.EventID,
		booking.Quantity, booking.TotalCents, booking.Status,
	).Scan(&booking.CreatedAt); err != nil {
		return nil, err
	}

	payment := domain.Payment{
		ID:          uuid.New(),
		BookingID:   booking.ID,
		AmountCents: booking.TotalCents,
		Status:      domain.PaymentPending,
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO payments(id, booking_id, amount_cents, status)
       	 VALUES ($1, $2, $3, $4)`,
		payment.ID, payment.BookingID, payment.AmountCents, payment.Status,
	); err != nil {
		return nil, err
	}

	return &domain.BookingWithPayment{Booking: booking, Payment: payment}, nil
}

// countReserved returns the number of issued tickets and the quantity held by
// pending bookings created after cutoff.
func (r *InventoryRepo) countReserved(
	ctx context.Context,
	db DB,
	eventID int64,
	cutoff time.Time,
) (booked, pending int64, err error) {
	err = db.QueryRow(ctx,
		`SELECT COUNT(*)
       	 FROM tickets t
       	 JOIN bookings b ON b.id = t.booking_id
      	 WHERE b.event_id = $1 AND t.status = $2`,
		eventID, domain.TicketBooked,
	).Scan(&booked)
	if err != nil {
		return 0, 0, err
	}

	err = db.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0)
       	 FROM bookings
      	 WHERE event_id = $1 AND status = $2 AND created_at > $3`,
		eventID, domain.BookingPending, cutoff,
	).Scan(&pending)
	if err != nil {
		return 0, 0, err
	}

	return booked, pending, nil
}
