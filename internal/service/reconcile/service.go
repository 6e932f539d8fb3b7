package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaminskyi/eventbook/internal/domain"
	"github.com/kaminskyi/eventbook/internal/gateway"
	"github.com/kaminskyi/eventbook/internal/monitoring"
	"github.com/kaminskyi/eventbook/internal/repository"
	postgresrepo "github.com/kaminskyi/eventbook/internal/repository/postgres"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/uow"
)

type Config struct {
	// LoyaltyCredit is the fixed number of points granted per finalized
	// booking, independent of spend or quantity.
	LoyaltyCredit int64

	// PendingTTL is the expiry window for pending bookings; the sweep cancels
	// anything older.
	PendingTTL time.Duration
}

// Publisher broadcasts availability-affecting changes to peers.
type Publisher interface {
	PublishBookingChanged(ctx context.Context, eventID int64) error
}

// Service consumes verified gateway notifications and drives the booking and
// payment state machines to their terminal states exactly once.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub Publisher
	uow    *uow.UoW
	logger *slog.Logger
	cfg    Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub Publisher,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.LoyaltyCredit <= 0 {
		cfg.LoyaltyCredit = 1
	}

	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		logger: logger,
		cfg:    cfg,
	}
}

// HandleNotification processes one verified provider notification. Duplicate
// deliveries, notifications for unknown sessions, and events arriving after a
// terminal transition all succeed as no-ops so the provider stops retrying.
// Only data-integrity violations and infrastructure failures return an error.
func (s *Service) HandleNotification(ctx context.Context, n gateway.Notification) error {
	switch n.Type {
	case gateway.EventPaymentCompleted:
		return s.handleCompleted(ctx, n.SessionID)
	case gateway.EventPaymentFailed:
		return s.handleFailed(ctx, n.SessionID)
	default:
		s.logger.Info("ignoring unhandled notification type",
			"type", n.Type, "session_id", n.SessionID)
		monitoring.WebhookProcessed(n.Type, "ignored")
		return nil
	}
}

// ExpireSweep cancels pending bookings whose payment window has lapsed and
// releases their reservations. Safe to run concurrently with live traffic;
// inventory counting already treats such bookings as expired.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	const op = "service.reconcile.ExpireSweep"

	expired, err := s.store.Reconcile().ExpirePending(ctx, time.Now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	for _, e := range expired {
		_ = s.cache.InvalidateEvent(ctx, e.EventID)
		_ = s.pubsub.PublishBookingChanged(ctx, e.EventID)
		_ = s.store.Audit().Insert(ctx, e.CustomerID, domain.AuditBookingExpired,
			fmt.Sprintf("booking %s expired before payment", e.BookingID))
	}

	if n := len(expired); n > 0 {
		monitoring.BookingsExpired(n)
		s.logger.Info("expired stale pending bookings", "count", n)
	}

	return len(expired), nil
}

func (s *Service) handleCompleted(ctx context.Context, sessionID string) error {
	const op = "service.reconcile.handleCompleted"

	var out *postgresrepo.FinalizeOutcome

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		res, err := s.store.Reconcile().With(tx).FinalizeBySession(ctx, sessionID, s.cfg.LoyaltyCredit, s.cfg.PendingTTL)
		if err != nil {
			return err
		}

		out = res

		if res.Expired {
			after(func(ctx context.Context) {
				b := res.Booking
				_ = s.store.Audit().Insert(ctx, b.CustomerID, domain.AuditBookingExpired,
					fmt.Sprintf("booking %s expired before its payment confirmation arrived", b.ID))
			})
			return nil
		}

		if !res.Applied {
			return nil
		}

		after(func(ctx context.Context) {
			b := res.Booking
			_ = s.cache.InvalidateEvent(ctx, b.EventID)
			_ = s.cache.InvalidateLoyalty(ctx, b.CustomerID)
			_ = s.pubsub.PublishBookingChanged(ctx, b.EventID)
			_ = s.store.Audit().Insert(ctx, b.CustomerID, domain.AuditPaymentPaid,
				fmt.Sprintf("payment for booking %s confirmed, %d tickets issued, amount %d cents",
					b.ID, len(res.Tickets), b.TotalCents))
		})

		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		// Retried deliveries for unknown or long-gone sessions must not
		// surface as failures to the provider.
		s.logger.Info("completed notification for unknown session", "session_id", sessionID)
		monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "unknown_session")
		return nil
	case errors.Is(err, repository.ErrInconsistentState):
		s.logger.Error("data integrity violation on payment completion",
			"session_id", sessionID, "error", err)
		monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "error")
		return fmt.Errorf("%s:%w", op, ErrInconsistentState)
	default:
		monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "error")
		return fmt.Errorf("%s:%w", op, err)
	}

	if out.Expired {
		s.logger.Info("completed notification for expired reservation",
			"session_id", sessionID, "booking_id", out.Booking.ID)
		monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "expired")
		return nil
	}

	if !out.Applied {
		s.logger.Info("duplicate completed notification", "session_id", sessionID,
			"booking_id", out.Booking.ID)
		monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "duplicate")
		return nil
	}

	monitoring.WebhookProcessed(gateway.EventPaymentCompleted, "applied")
	monitoring.TicketsIssued(len(out.Tickets))

	s.logger.Info("booking finalized",
		"booking_id", out.Booking.ID,
		"session_id", sessionID,
		"tickets", len(out.Tickets),
		"loyalty_balance", out.LoyaltyPoints)

	return nil
}

func (s *Service) handleFailed(ctx context.Context, sessionID string) error {
	const op = "service.reconcile.handleFailed"

	var out *postgresrepo.FailOutcome

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		res, err := s.store.Reconcile().With(tx).FailBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		out = res

		if !res.Applied {
			return nil
		}

		after(func(ctx context.Context) {
			b := res.Booking
			_ = s.cache.InvalidateEvent(ctx, b.EventID)
			_ = s.pubsub.PublishBookingChanged(ctx, b.EventID)
			_ = s.store.Audit().Insert(ctx, b.CustomerID, domain.AuditPaymentFailed,
				fmt.Sprintf("payment for booking %s failed, reservation released", b.ID))
		})

		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Info("failed notification for unknown session", "session_id", sessionID)
		monitoring.WebhookProcessed(gateway.EventPaymentFailed, "unknown_session")
		return nil
	case errors.Is(err, repository.ErrInconsistentState):
		s.logger.Error("data integrity violation on payment failure",
			"session_id", sessionID, "error", err)
		monitoring.WebhookProcessed(gateway.EventPaymentFailed, "error")
		return fmt.Errorf("%s:%w", op, ErrInconsistentState)
	default:
		monitoring.WebhookProcessed(gateway.EventPaymentFailed, "error")
		return fmt.Errorf("%s:%w", op, err)
	}

	if !out.Applied {
		monitoring.WebhookProcessed(gateway.EventPaymentFailed, "duplicate")
		return nil
	}

	monitoring.WebhookProcessed(gateway.EventPaymentFailed, "applied")

	s.logger.Info("booking cancelled on failed payment",
		"booking_id", out.Booking.ID, "session_id", sessionID)

	return nil
}
