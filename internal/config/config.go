package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Codec    CodecConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// GatewayConfig describes the hosted-checkout provider the engine hands
// payments off to.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	SigningSecret string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// CodecConfig points at the external service that turns a ticket token into a
// scannable artifact. An empty endpoint selects the inline development codec.
type CodecConfig struct {
	Endpoint string
}

type BookingConfig struct {
	// PendingTTL is how long a pending booking holds its reserved quantity
	// before the expiry sweep cancels it.
	PendingTTL time.Duration

	// SweepInterval is the period of the background expiry sweep.
	SweepInterval time.Duration

	// LoyaltyCredit is the fixed number of points granted per finalized
	// booking.
	LoyaltyCredit int64

	// UnboundedWithoutVenue treats events with no venue as having unlimited
	// capacity instead of rejecting bookings for them.
	UnboundedWithoutVenue bool
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: envOr("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
	}

	for _, missing := range []struct {
		name, val string
	}{
		{"POSTGRES_USER", postgresCfg.User},
		{"POSTGRES_PASSWORD", postgresCfg.Password},
		{"POSTGRES_DB", postgresCfg.Name},
	} {
		if missing.val == "" {
			return nil, fmt.Errorf("%s: missing %s", op, missing.name)
		}
	}

	redisCfg := RedisConfig{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	gatewayCfg := GatewayConfig{
		BaseURL:       os.Getenv("GATEWAY_BASE_URL"),
		APIKey:        os.Getenv("GATEWAY_API_KEY"),
		SigningSecret: os.Getenv("GATEWAY_SIGNING_SECRET"),
		WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Currency:      envOr("GATEWAY_CURRENCY", "usd"),
		SuccessURL:    os.Getenv("GATEWAY_SUCCESS_URL"),
		CancelURL:     os.Getenv("GATEWAY_CANCEL_URL"),
	}
	if gatewayCfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%s: missing GATEWAY_WEBHOOK_SECRET", op)
	}

	pendingTTL, err := envDuration("BOOKING_PENDING_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sweepInterval, err := envDuration("BOOKING_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loyaltyCredit, err := envInt("LOYALTY_CREDIT_POINTS", 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bookingCfg := BookingConfig{
		PendingTTL:            pendingTTL,
		SweepInterval:         sweepInterval,
		LoyaltyCredit:         int64(loyaltyCredit),
		UnboundedWithoutVenue: os.Getenv("INVENTORY_UNBOUNDED_WITHOUT_VENUE") == "true",
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Gateway:  gatewayCfg,
		Codec:    CodecConfig{Endpoint: os.Getenv("TICKET_CODEC_ENDPOINT")},
		Booking:  bookingCfg,
	}, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	return v, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	return v, nil
}
