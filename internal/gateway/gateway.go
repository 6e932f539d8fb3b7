package gateway

import (
	"context"
	"errors"
)

// Notification event types delivered by the provider's webhook.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

var (
	// ErrUnavailable marks transient provider failures; the session-open step
	// is safe to retry with the same booking.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrBadSignature marks an inbound notification that failed verification.
	ErrBadSignature = errors.New("webhook signature verification failed")
)

// SessionRequest describes a hosted-checkout session to open.
type SessionRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

// Session is the provider's handle for a hosted checkout.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// Notification is the payload of a verified asynchronous provider callback.
type Notification struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Gateway is the outbound boundary to the payment provider. The engine only
// depends on session creation; everything else about the provider is opaque.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}
