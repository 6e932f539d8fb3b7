package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaminskyi/eventbook/internal/config"
	"github.com/kaminskyi/eventbook/internal/gateway"
	"github.com/kaminskyi/eventbook/internal/gateway/checkout"
	"github.com/kaminskyi/eventbook/internal/postgres"
	redisx "github.com/kaminskyi/eventbook/internal/redis"
	postgresrepo "github.com/kaminskyi/eventbook/internal/repository/postgres"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/service"
	"github.com/kaminskyi/eventbook/internal/service/booking"
	"github.com/kaminskyi/eventbook/internal/service/query"
	"github.com/kaminskyi/eventbook/internal/service/reconcile"
	"github.com/kaminskyi/eventbook/internal/ticketcodec"
	httpgin "github.com/kaminskyi/eventbook/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	cache      *redisrepo.Cache
	pubsub     *redisx.BookingsPubSub
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewBookingsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.KeyRateLimit("bookings", "create"), 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Outbound payment provider
	gw := checkout.New(checkout.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		SigningSecret: cfg.Gateway.SigningSecret,
	})
	verifier := gateway.NewVerifier(cfg.Gateway.WebhookSecret)

	var codec ticketcodec.Codec = ticketcodec.Inline{}
	if cfg.Codec.Endpoint != "" {
		codec = ticketcodec.NewHTTP(cfg.Codec.Endpoint)
	}

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, idempotencyStore, gw, codec, logger, service.Config{
		Booking: booking.Config{
			PendingTTL:            cfg.Booking.PendingTTL,
			UnboundedWithoutVenue: cfg.Booking.UnboundedWithoutVenue,
			Currency:              cfg.Gateway.Currency,
			SuccessURL:            cfg.Gateway.SuccessURL,
			CancelURL:             cfg.Gateway.CancelURL,
		},
		Reconcile: reconcile.Config{
			LoyaltyCredit: cfg.Booking.LoyaltyCredit,
			PendingTTL:    cfg.Booking.PendingTTL,
		},
		Query: query.Config{
			PendingTTL: cfg.Booking.PendingTTL,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, verifier, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		cache:    cache,
		pubsub:   pubsub,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expiry sweep: cancel pending bookings whose payment window lapsed
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Booking.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := a.services.Reconcile.ExpireSweep(gCtx); err != nil {
					a.logger.Error("expiry sweep failed", "error", err)
				}
			}
		}
	})

	// Drop stale availability caches when a peer changes bookings
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID int64) {
			_ = a.cache.InvalidateEvent(ctx, eventID)
		})
		if err != nil && gCtx.Err() == nil {
			a.logger.Error("pubsub subscription ended", "error", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
