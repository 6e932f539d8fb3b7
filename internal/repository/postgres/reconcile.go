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

type ReconcileRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReconcileRepo) With(db DB) *ReconcileRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReconcileRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// FinalizeOutcome reports what a completed-payment notification did.
type FinalizeOutcome struct {
	// Applied is false for idempotent no-ops (duplicate or out-of-order
	// deliveries).
	Applied bool

	// Expired is true when the notification arrived for a pending booking
	// whose reservation window had already lapsed. The booking is cancelled
	// and its payment failed instead of issuing tickets.
	Expired bool

	Booking domain.Booking
	Tickets []domain.Ticket

	// LoyaltyPoints is the customer's balance after crediting. Zero when the
	// notification was a no-op.
	LoyaltyPoints int64
}

// FailOutcome reports what a failed-payment notification did.
type FailOutcome struct {
	Applied bool
	Booking domain.Booking
}

// ExpiredBooking identifies a pending booking cancelled by the expiry sweep.
type ExpiredBooking struct {
	BookingID  uuid.UUID
	EventID    int64
	CustomerID string
}

// FinalizeBySession applies a verified "payment completed" notification:
// marks the payment paid, the booking booked, issues exactly the booked
// quantity of tickets, and credits the customer's loyalty balance. The whole
// sequence runs in one serializable transaction; duplicate or out-of-order
// deliveries return Applied=false without touching anything.
//
// pendingTTL is the same reservation window inventory counting uses. A
// notification for a pending booking older than the window expires the
// booking instead of finalizing it (Applied=false, Expired=true): its seats
// no longer count as reserved and may already belong to someone else.
//
// Returns:
//   - repository.ErrNotFound when no payment carries the session id.
//   - repository.ErrInconsistentState when the stored booking/payment pair
//     violates the state machine; nothing is written.
func (r *ReconcileRepo) FinalizeBySession(
	ctx context.Context,
	sessionID string,
	loyaltyCredit int64,
	pendingTTL time.Duration,
) (*FinalizeOutcome, error) {
	const op = "postgres.ReconcileRepo.FinalizeBySession"

	if r.db != nil {
		out, err := r.finalizeCore(ctx, r.db, sessionID, loyaltyCredit, pendingTTL)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return out, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	out, err := r.finalizeCore(ctx, tx, sessionID, loyaltyCredit, pendingTTL)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// FailBySession applies a verified "payment failed" notification: marks the
// payment failed and the booking cancelled, which releases the booking's
// reserved quantity back to the pool. Terminal states make it a no-op.
func (r *ReconcileRepo) FailBySession(ctx context.Context, sessionID string) (*FailOutcome, error) {
	const op = "postgres.ReconcileRepo.FailBySession"

	if r.db != nil {
		out, err := r.failCore(ctx, r.db, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return out, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	out, err := r.failCore(ctx, tx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// ExpirePending cancels pending bookings created at or before cutoff and
// fails their payments, releasing the held reservations. Both updates run in
// one transaction so a booking never lands cancelled while its payment stays
// pending.
func (r *ReconcileRepo) ExpirePending(ctx context.Context, cutoff time.Time) ([]ExpiredBooking, error) {
	const op = "postgres.ReconcileRepo.ExpirePending"

	if r.db != nil {
		expired, err := r.expireCore(ctx, r.db, cutoff)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return expired, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	expired, err := r.expireCore(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return expired, nil
}

func (r *ReconcileRepo) expireCore(ctx context.Context, db DB, cutoff time.Time) ([]ExpiredBooking, error) {
	rows, err := db.Query(ctx,
		`UPDATE bookings
         SET status = $1
      	 WHERE status = $2 AND created_at <= $3
      	 RETURNING id, event_id, customer_id`,
		domain.BookingCancelled, domain.BookingPending, cutoff,
	)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var expired []ExpiredBooking
	for rows.Next() {
		var e ExpiredBooking
		if err := rows.Scan(&e.BookingID, &e.EventID, &e.CustomerID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(expired) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(expired))
	for _, e := range expired {
		ids = append(ids, e.BookingID)
	}

	if _, err := db.Exec(ctx,
		`UPDATE payments
         SET status = $1
      	 WHERE booking_id = ANY($2) AND status = $3`,
		domain.PaymentFailed, ids, domain.PaymentPending,
	); err != nil {
		return nil, err
	}

	return expired, nil
}

func (r *ReconcileRepo) finalizeCore(
	ctx context.Context,
	db DB,
	sessionID string,
	loyaltyCredit int64,
	pendingTTL time.Duration,
) (*FinalizeOutcome, error) {
	paymentID, booking, paymentStatus, err := r.lookupBySession(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}

	switch domain.OnPaymentCompleted(paymentStatus, booking.Status) {
	case domain.ReconcileSkip:
		return &FinalizeOutcome{Applied: false, Booking: *booking}, nil
	case domain.ReconcileInconsistent:
		return nil, repository.ErrInconsistentState
	}

	now := time.Now()

	// The reservation lapsed before the notification landed. Inventory
	// counting already released these seats, so issuing tickets now could
	// exceed capacity; expire the pair instead and ack as a no-op.
	if booking.ReservationExpired(pendingTTL, now) {
		if _, err := db.Exec(ctx,
			`UPDATE bookings SET status = $1 WHERE id = $2`,
			domain.BookingCancelled, booking.ID,
		); err != nil {
			return nil, err
		}

		if _, err := db.Exec(ctx,
			`UPDATE payments SET status = $1 WHERE id = $2`,
			domain.PaymentFailed, paymentID,
		); err != nil {
			return nil, err
		}

		booking.Status = domain.BookingCancelled

		return &FinalizeOutcome{Applied: false, Expired: true, Booking: *booking}, nil
	}

	if _, err := db.Exec(ctx,
		`UPDATE payments SET status = $1, paid_at = $2 WHERE id = $3`,
		domain.PaymentPaid, now, paymentID,
	); err != nil {
		return nil, err
	}

	if _, err := db.Exec(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2`,
		domain.BookingBooked, booking.ID,
	); err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, 0, booking.Quantity)
	batch := &pgx.Batch{}
	for i := 1; i <= booking.Quantity; i++ {
		t := domain.Ticket{
			ID:        uuid.New(),
			BookingID: booking.ID,
			SeatLabel: domain.SeatLabel(i),
			Token:     domain.TicketToken(booking.CustomerID, booking.EventID),
			Status:    domain.TicketBooked,
		}
		tickets = append(tickets, t)
		batch.Queue(
			`INSERT INTO tickets(id, booking_id, seat_label, token, status)
         	 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.BookingID, t.SeatLabel, t.Token, t.Status,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}

	loyalty := &LoyaltyRepo{pool: r.pool}
	balance, err := loyalty.With(db).Credit(ctx, booking.CustomerID, loyaltyCredit)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingBooked

	return &FinalizeOutcome{
		Applied:       true,
		Booking:       *booking,
		Tickets:       tickets,
		LoyaltyPoints: balance,
	}, nil
}

func (r *ReconcileRepo) failCore(ctx context.Context, db DB, sessionID string) (*FailOutcome, error) {
	paymentID, booking, paymentStatus, err := r.lookupBySession(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}

	switch domain.OnPaymentFailed(paymentStatus, booking.Status) {
	case domain.ReconcileSkip:
		return &FailOutcome{Applied: false, Booking: *booking}, nil
	case domain.ReconcileInconsistent:
		return nil, repository.ErrInconsistentState
	}

	if _, err := db.Exec(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2`,
		domain.PaymentFailed, paymentID,
	); err != nil {
		return nil, err
	}

	if _, err := db.Exec(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2`,
		domain.BookingCancelled, booking.ID,
	); err != nil {
		return nil, err
	}

	booking.Status = domain.BookingCancelled

	return &FailOutcome{Applied: true, Booking: *booking}, nil
}

func (r *ReconcileRepo) lookupBySession(
	ctx context.Context,
	db DB,
	sessionID string,
) (uuid.UUID, *domain.Booking, domain.PaymentStatus, error) {
	var paymentID uuid.UUID
	var paymentStatus domain.PaymentStatus
	var b domain.Booking

	err := db.QueryRow(ctx,
		`SELECT p.id, p.status,
            	b.id, b.customer_id, b.event_id, b.quantity, b.total_cents, b.status, b.created_at
       	 FROM payments p
       	 JOIN bookings b ON b.id = p.booking_id
      	 WHERE p.gateway_session_id = $1`,
		sessionID,
	).Scan(
		&paymentID, &paymentStatus,
		&b.ID, &b.CustomerID, &b.EventID, &b.Quantity, &b.TotalCents, &b.Status, &b.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, nil, "", err
	}

	return paymentID, &b, paymentStatus, nil
}
