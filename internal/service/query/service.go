package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kaminskyi/eventbook/internal/domain"
	redisx "github.com/kaminskyi/eventbook/internal/redis"
	"github.com/kaminskyi/eventbook/internal/repository"
	postgresrepo "github.com/kaminskyi/eventbook/internal/repository/postgres"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/ticketcodec"
)

type Config struct {
	AvailabilityTTL time.Duration
	LoyaltyTTL      time.Duration

	// PendingTTL must match the booking service's reservation window so the
	// availability read applies the same expiry cutoff as the reserve path.
	PendingTTL time.Duration
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	codec ticketcodec.Codec
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, codec ticketcodec.Codec, cfg Config) *Service {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.LoyaltyTTL <= 0 {
		cfg.LoyaltyTTL = 30 * time.Second
	}

	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}

	return &Service{
		store: store,
		cache: cache,
		codec: codec,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event from the catalog.
//
// Returns:
//   - query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	e, err := s.store.Catalog().GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// Availability reports the inventory counters for an event through the cache.
//
// Returns:
//   - query.ErrEventNotFound if the event is not found.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.Availability, error) {
	const op = "service.query.Availability"

	key := redisx.KeyEventAvailability(eventID)

	av, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.Availability, error) {
			a, err := s.store.Inventory().Availability(ctx, eventID, s.cfg.PendingTTL)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Availability{}, ErrEventNotFound
				}

				return domain.Availability{}, err
			}

			return *a, nil
		},
	)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &av, nil
}

// GetBooking retrieves a booking together with its payment.
//
// Returns:
//   - query.ErrBookingNotFound if the booking is not found.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.BookingWithPayment, error) {
	const op = "service.query.GetBooking"

	bw, err := s.store.Bookings().GetWithPayment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bw, nil
}

// TicketArtifact bundles one issued ticket with its encoded scannable blob.
type TicketArtifact struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	SeatLabel string    `json:"seat_label"`
	Artifact  []byte    `json:"artifact"`
}

// TicketArtifacts returns one encoded artifact per ticket of the booking.
// A booking that has not been finalized yet yields an empty bundle.
//
// Returns:
//   - query.ErrBookingNotFound if the booking is not found.
func (s *Service) TicketArtifacts(ctx context.Context, bookingID uuid.UUID) ([]TicketArtifact, error) {
	const op = "service.query.TicketArtifacts"

	if _, err := s.store.Bookings().GetWithPayment(ctx, bookingID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tickets, err := s.store.Bookings().ListTickets(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	artifacts := make([]TicketArtifact, 0, len(tickets))
	for _, t := range tickets {
		blob, err := s.codec.Encode(ctx, t.Token)
		if err != nil {
			return nil, fmt.Errorf("%s: encode ticket %s: %w", op, t.ID, err)
		}

		artifacts = append(artifacts, TicketArtifact{
			TicketID:  t.ID,
			SeatLabel: t.SeatLabel,
			Artifact:  blob,
		})
	}

	return artifacts, nil
}

// LoyaltyBalance reports the customer's point balance through the cache.
// Customers that were never credited read as zero.
func (s *Service) LoyaltyBalance(ctx context.Context, customerID string) (*domain.LoyaltyBalance, error) {
	const op = "service.query.LoyaltyBalance"

	key := redisx.KeyLoyaltyBalance(customerID)

	lb, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.LoyaltyTTL,
		func(ctx context.Context) (domain.LoyaltyBalance, error) {
			b, err := s.store.Loyalty().Balance(ctx, customerID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.LoyaltyBalance{CustomerID: customerID}, nil
				}

				return domain.LoyaltyBalance{}, err
			}

			return *b, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &lb, nil
}
