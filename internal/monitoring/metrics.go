package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbook_bookings_created_total",
			Help: "Bookings that successfully reserved inventory",
		},
	)

	bookingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbook_bookings_rejected_total",
			Help: "Booking requests rejected before any mutation",
		},
		[]string{"reason"},
	)

	webhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbook_webhooks_processed_total",
			Help: "Gateway notifications by processing outcome",
		},
		[]string{"type", "outcome"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbook_tickets_issued_total",
			Help: "Tickets created by payment finalization",
		},
	)

	bookingsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbook_bookings_expired_total",
			Help: "Pending bookings cancelled by the expiry sweep",
		},
	)
)

func BookingCreated() { bookingsCreated.Inc() }

func BookingRejected(reason string) { bookingsRejected.WithLabelValues(reason).Inc() }

// WebhookProcessed records a notification outcome: applied, duplicate,
// expired, unknown_session, rejected, or error.
func WebhookProcessed(eventType, outcome string) {
	webhooksProcessed.WithLabelValues(eventType, outcome).Inc()
}

func TicketsIssued(n int) { ticketsIssued.Add(float64(n)) }

func BookingsExpired(n int) { bookingsExpired.Add(float64(n)) }
