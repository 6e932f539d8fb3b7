package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "eventbook")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "eventbook")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec_test")
}

func TestNewDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, "usd", cfg.Gateway.Currency)
	assert.Equal(t, 15*time.Minute, cfg.Booking.PendingTTL)
	assert.Equal(t, time.Minute, cfg.Booking.SweepInterval)
	assert.Equal(t, int64(1), cfg.Booking.LoyaltyCredit)
	assert.False(t, cfg.Booking.UnboundedWithoutVenue)
}

func TestNewOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOOKING_PENDING_TTL", "5m")
	t.Setenv("LOYALTY_CREDIT_POINTS", "3")
	t.Setenv("INVENTORY_UNBOUNDED_WITHOUT_VENUE", "true")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Booking.PendingTTL)
	assert.Equal(t, int64(3), cfg.Booking.LoyaltyCredit)
	assert.True(t, cfg.Booking.UnboundedWithoutVenue)
}

func TestNewMissingWebhookSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_WEBHOOK_SECRET")
}

func TestNewBadDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOOKING_PENDING_TTL", "soon")

	_, err := New()
	require.Error(t, err)
}
