package httpgin

import (
	"time"

	"github.com/kaminskyi/eventbook/internal/domain"
)

type CreateBookingRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	EventID    int64  `json:"event_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type BookingResponse struct {
	BookingID     string  `json:"booking_id"`
	CustomerID    string  `json:"customer_id"`
	EventID       int64   `json:"event_id"`
	Quantity      int     `json:"quantity"`
	TotalCents    int64   `json:"total_cents"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	SessionID     *string `json:"session_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type PaymentSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

func toBookingResponse(bw *domain.BookingWithPayment) BookingResponse {
	return BookingResponse{
		BookingID:     bw.Booking.ID.String(),
		CustomerID:    bw.Booking.CustomerID,
		EventID:       bw.Booking.EventID,
		Quantity:      bw.Booking.Quantity,
		TotalCents:    bw.Booking.TotalCents,
		Status:        string(bw.Booking.Status),
		PaymentStatus: string(bw.Payment.Status),
		SessionID:     bw.Payment.SessionID,
		CreatedAt:     bw.Booking.CreatedAt.Format(time.RFC3339),
	}
}
