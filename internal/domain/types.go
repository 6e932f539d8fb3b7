package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingBooked    BookingStatus = "booked"
	BookingCancelled BookingStatus = "cancelled"
)

// Terminal reports whether no further transition may be applied to the booking.
func (s BookingStatus) Terminal() bool {
	return s == BookingBooked || s == BookingCancelled
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type TicketStatus string

const (
	TicketBooked    TicketStatus = "booked"
	TicketCancelled TicketStatus = "cancelled"
)

type AuditAction string

const (
	AuditBookingCreated AuditAction = "booking_created"
	AuditSessionOpened  AuditAction = "session_opened"
	AuditPaymentPaid    AuditAction = "payment_paid"
	AuditPaymentFailed  AuditAction = "payment_failed"
	AuditBookingExpired AuditAction = "booking_expired"
)

type Venue struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Capacity int64  `json:"capacity"`
}

type Event struct {
	ID         int64     `json:"id"`
	VenueID    *int64    `json:"venue_id,omitempty"`
	Organizer  string    `json:"organizer"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	StartsAt   time.Time `json:"starts_at"`
}

type Booking struct {
	ID         uuid.UUID
	CustomerID string
	EventID    int64
	Quantity   int
	TotalCents int64
	Status     BookingStatus
	CreatedAt  time.Time
}

type Payment struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	AmountCents int64
	SessionID   *string
	Status      PaymentStatus
	PaidAt      *time.Time
}

type Ticket struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	SeatLabel string
	Token     string
	Status    TicketStatus
}

type LoyaltyBalance struct {
	CustomerID string    `json:"customer_id"`
	Points     int64     `json:"points"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BookingWithPayment struct {
	Booking Booking
	Payment Payment
}

type Availability struct {
	Capacity  int64 `json:"capacity"`
	Booked    int64 `json:"booked"`
	Pending   int64 `json:"pending"`
	Available int64 `json:"available"`
}

// Available computes the sellable inventory for an event: the venue capacity
// minus issued tickets and minus quantities held by pending, non-expired
// bookings. Never negative.
func Available(capacity, booked, pending int64) int64 {
	a := capacity - booked - pending
	if a < 0 {
		return 0
	}
	return a
}

// TotalCents is the booking charge for qty tickets at the event's unit price.
func TotalCents(priceCents int64, qty int) int64 {
	return priceCents * int64(qty)
}

// TicketToken returns a fresh opaque token for a ticket. The customer and
// event prefixes exist for operator debugging; uniqueness comes from the
// embedded UUID.
func TicketToken(customerID string, eventID int64) string {
	return fmt.Sprintf("%s_%d_%s", customerID, eventID, uuid.New())
}

// SeatLabel returns the sequential label for the i-th ticket of a booking,
// starting at 1.
func SeatLabel(i int) string {
	return fmt.Sprintf("T-%d", i)
}
