package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaminskyi/eventbook/internal/domain"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetWithPayment retrieves a booking and its payment.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) GetWithPayment(ctx context.Context, id uuid.UUID) (*domain.BookingWithPayment, error) {
	const op = "postgres.BookingRepo.GetWithPayment"

	db := r.handle()

	var bw domain.BookingWithPayment
	err := db.QueryRow(ctx,
		`SELECT b.id, b.customer_id, b.event_id, b.quantity, b.total_cents, b.status, b.created_at,
            	p.id, p.booking_id, p.amount_cents, p.gateway_session_id, p.status, p.paid_at
       	 FROM bookings b
       	 JOIN payments p ON p.booking_id = b.id
      	 WHERE b.id = $1`,
		id,
	).Scan(
		&bw.Booking.ID, &bw.Booking.CustomerID, &bw.Booking.EventID,
		&bw.Booking.Quantity, &bw.Booking.TotalCents, &bw.Booking.Status, &bw.Booking.CreatedAt,
		&bw.Payment.ID, &bw.Payment.BookingID, &bw.Payment.AmountCents,
		&bw.Payment.SessionID, &bw.Payment.Status, &bw.Payment.PaidAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &bw, nil
}

// AttachSession stores the gateway session id on the booking's pending
// payment. A retried session-open replaces the previous id, so the booking
// can only ever be finalized through the most recent session.
//
// Returns:
//   - error: repository.ErrNotFound if the booking has no pending payment.
func (r *BookingRepo) AttachSession(ctx context.Context, bookingID uuid.UUID, sessionID string) error {
	const op = "postgres.BookingRepo.AttachSession"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE payments
         SET gateway_session_id = $1
      	 WHERE booking_id = $2 AND status = $3`,
		sessionID, bookingID, domain.PaymentPending,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// ListTickets returns the tickets issued for a booking, ordered by seat label
// sequence.
func (r *BookingRepo) ListTickets(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error) {
	const op = "postgres.BookingRepo.ListTickets"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, booking_id, seat_label, token, status
       	 FROM tickets
      	 WHERE booking_id = $1
      	 ORDER BY seat_label`,
		bookingID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.SeatLabel, &t.Token, &t.Status); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tickets, nil
}
