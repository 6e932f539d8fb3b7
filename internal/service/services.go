package service

import (
	"log/slog"

	"github.com/kaminskyi/eventbook/internal/gateway"
	redisx "github.com/kaminskyi/eventbook/internal/redis"
	postgres "github.com/kaminskyi/eventbook/internal/repository/postgres"
	redis "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/service/booking"
	"github.com/kaminskyi/eventbook/internal/service/query"
	"github.com/kaminskyi/eventbook/internal/service/reconcile"
	"github.com/kaminskyi/eventbook/internal/ticketcodec"
)

type Services struct {
	Booking   *booking.Service
	Reconcile *reconcile.Service
	Query     *query.Service
}

type Config struct {
	Booking   booking.Config
	Reconcile reconcile.Config
	Query     query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redisx.BookingsPubSub,
	limiter *redis.SlidingWindowLimiter,
	idem *redis.IdempotencyStore,
	gw gateway.Gateway,
	codec ticketcodec.Codec,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Booking:   booking.New(store, cache, pubsub, limiter, idem, gw, cfg.Booking),
		Reconcile: reconcile.New(store, cache, pubsub, logger, cfg.Reconcile),
		Query:     query.New(store, cache, codec, cfg.Query),
	}
}
