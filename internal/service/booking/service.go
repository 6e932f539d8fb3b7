package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kaminskyi/eventbook/internal/domain"
	"github.com/kaminskyi/eventbook/internal/gateway"
	"github.com/kaminskyi/eventbook/internal/monitoring"
	"github.com/kaminskyi/eventbook/internal/repository"
	postgresrepo "github.com/kaminskyi/eventbook/internal/repository/postgres"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/uow"
)

type Config struct {
	// PendingTTL is the reservation window: how long a pending booking keeps
	// counting against inventory while the customer pays.
	PendingTTL time.Duration

	// UnboundedWithoutVenue allows booking events that have no venue.
	UnboundedWithoutVenue bool

	Currency   string
	SuccessURL string
	CancelURL  string

	// SessionLockTTL bounds how long a session-open attempt may hold the
	// per-booking idempotency lock.
	SessionLockTTL time.Duration
}

type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  Publisher
	limiter *redisrepo.SlidingWindowLimiter
	idem    *redisrepo.IdempotencyStore
	gw      gateway.Gateway
	uow     *uow.UoW
	cfg     Config
}

// Publisher broadcasts availability-affecting changes to peers.
type Publisher interface {
	PublishBookingChanged(ctx context.Context, eventID int64) error
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub Publisher,
	limiter *redisrepo.SlidingWindowLimiter,
	idem *redisrepo.IdempotencyStore,
	gw gateway.Gateway,
	cfg Config,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}

	if cfg.SessionLockTTL <= 0 {
		cfg.SessionLockTTL = 60 * time.Second
	}

	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		idem:    idem,
		gw:      gw,
		uow:     uow.NewUoW(store),
		cfg:     cfg,
	}
}

// CreateBooking reserves qty tickets for the customer and persists the
// pending booking together with its pending payment as one atomic unit.
// Nothing is written when the reservation fails.
//
// Returns:
//   - booking.ErrInvalidQuantity when qty < 1.
//   - booking.ErrEventNotFound when the event does not exist.
//   - booking.ErrNoVenueConfigured when the event has no venue and unbounded
//     capacity is disabled.
//   - booking.ErrInsufficientInventory when qty exceeds the remaining pool.
//   - booking.ErrRateLimited when the client key exhausted its window.
func (s *Service) CreateBooking(
	ctx context.Context,
	customerID string,
	eventID int64,
	qty int,
	rlKey string,
) (*domain.BookingWithPayment, error) {
	const op = "service.booking.CreateBooking"

	if qty < 1 {
		monitoring.BookingRejected("invalid_quantity")
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			monitoring.BookingRejected("rate_limited")
			return nil, fmt.Errorf("%s: retry in %s: %w", op, retry, ErrRateLimited)
		}
	}

	var bw *domain.BookingWithPayment

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		res, err := s.store.Inventory().With(tx).ReserveBooking(ctx, postgresrepo.ReserveParams{
			CustomerID:            customerID,
			EventID:               eventID,
			Quantity:              qty,
			PendingTTL:            s.cfg.PendingTTL,
			UnboundedWithoutVenue: s.cfg.UnboundedWithoutVenue,
		})
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				monitoring.BookingRejected("event_not_found")
				return fmt.Errorf("%s:%w", op, ErrEventNotFound)
			case errors.Is(err, repository.ErrInsufficientInventory):
				monitoring.BookingRejected("insufficient_inventory")
				return fmt.Errorf("%s:%w", op, ErrInsufficientInventory)
			case errors.Is(err, repository.ErrNoVenueConfigured):
				monitoring.BookingRejected("no_venue")
				return fmt.Errorf("%s:%w", op, ErrNoVenueConfigured)
			case errors.Is(err, repository.ErrInvalidQuantity):
				monitoring.BookingRejected("invalid_quantity")
				return fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		bw = res

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, eventID)
			_ = s.pubsub.PublishBookingChanged(ctx, eventID)
			_ = s.store.Audit().Insert(ctx, customerID, domain.AuditBookingCreated,
				fmt.Sprintf("booking %s: %d tickets for event %d, total %d cents",
					res.Booking.ID, qty, eventID, res.Booking.TotalCents))
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.BookingCreated()

	return bw, nil
}

// OpenPaymentSession opens (or re-opens) the hosted-checkout session for a
// pending booking. The step is idempotent per booking: a concurrent or
// repeated call returns the already-created session, and a retry after a
// gateway outage replaces the stored session id without double-charging.
//
// Returns:
//   - booking.ErrBookingNotFound when the booking does not exist.
//   - booking.ErrAlreadyPaid when the payment already completed.
//   - booking.ErrBookingNotPending when the booking is cancelled.
//   - booking.ErrSessionInProgress when a concurrent open holds the lock.
//   - gateway.ErrUnavailable when the provider is down; safe to retry.
func (s *Service) OpenPaymentSession(ctx context.Context, bookingID uuid.UUID) (gateway.Session, error) {
	const op = "service.booking.OpenPaymentSession"

	idemKey := redisrepo.KeyIdemSession(bookingID.String())

	if payload, ok, _ := s.idem.GetResult(ctx, idemKey); ok {
		var session gateway.Session
		if err := json.Unmarshal([]byte(payload), &session); err == nil {
			return session, nil
		}
	}

	locked, err := s.idem.AcquireLock(ctx, idemKey, s.cfg.SessionLockTTL)
	if err != nil {
		return gateway.Session{}, fmt.Errorf("%s:%w", op, err)
	}
	if !locked {
		if payload, ok, _ := s.idem.GetResult(ctx, idemKey); ok {
			var session gateway.Session
			if err := json.Unmarshal([]byte(payload), &session); err == nil {
				return session, nil
			}
		}
		return gateway.Session{}, fmt.Errorf("%s:%w", op, ErrSessionInProgress)
	}

	session, err := s.openSession(ctx, bookingID)
	if err != nil {
		_ = s.idem.Release(ctx, idemKey)
		return gateway.Session{}, err
	}

	s.storeSessionResult(ctx, idemKey, session)

	return session, nil
}

// storeSessionResult replaces the lock with the serialized session. When the
// result cannot be stored the lock is dropped instead of left to expire, so a
// concurrent retry does not sit behind ErrSessionInProgress for the remainder
// of the lock TTL. The retry re-reads the booking and replaces the stored
// session id, which never double-charges.
func (s *Service) storeSessionResult(ctx context.Context, idemKey string, session gateway.Session) {
	b, err := json.Marshal(session)
	if err == nil {
		err = s.idem.SaveResult(ctx, idemKey, string(b))
	}
	if err != nil {
		_ = s.idem.Release(ctx, idemKey)
	}
}

func (s *Service) openSession(ctx context.Context, bookingID uuid.UUID) (gateway.Session, error) {
	const op = "service.booking.openSession"

	bw, err := s.store.Bookings().GetWithPayment(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return gateway.Session{}, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return gateway.Session{}, fmt.Errorf("%s:%w", op, err)
	}

	if bw.Payment.Status == domain.PaymentPaid {
		return gateway.Session{}, fmt.Errorf("%s:%w", op, ErrAlreadyPaid)
	}

	if bw.Booking.Status != domain.BookingPending {
		return gateway.Session{}, fmt.Errorf("%s:%w", op, ErrBookingNotPending)
	}

	session, err := s.gw.CreateSession(ctx, gateway.SessionRequest{
		AmountCents: bw.Payment.AmountCents,
		Currency:    s.cfg.Currency,
		Reference:   bookingID.String(),
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		return gateway.Session{}, fmt.Errorf("%s:%w", op, err)
	}

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		if err := s.store.Bookings().With(tx).AttachSession(ctx, bookingID, session.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrBookingNotPending)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.store.Audit().Insert(ctx, bw.Booking.CustomerID, domain.AuditSessionOpened,
				fmt.Sprintf("session %s opened for booking %s, amount %d cents",
					session.ID, bookingID, bw.Payment.AmountCents))
		})

		return nil
	})
	if err != nil {
		return gateway.Session{}, err
	}

	return session, nil
}
