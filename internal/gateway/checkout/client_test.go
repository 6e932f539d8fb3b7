package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaminskyi/eventbook/internal/gateway"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mac := hmac.New(sha256.New, []byte("signing_secret"))
		mac.Write(body)
		require.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("Request-Signature"))

		var req gateway.SessionRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, int64(7500), req.AmountCents)
		assert.Equal(t, "usd", req.Currency)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(gateway.Session{
			ID:          "cs_test_123",
			RedirectURL: "https://pay.example.com/cs_test_123",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk_test", SigningSecret: "signing_secret"})

	session, err := c.CreateSession(context.Background(), gateway.SessionRequest{
		AmountCents: 7500,
		Currency:    "usd",
		Reference:   "booking-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, "https://pay.example.com/cs_test_123", session.RedirectURL)
}

func TestCreateSessionProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk_test", SigningSecret: "s"})

	_, err := c.CreateSession(context.Background(), gateway.SessionRequest{AmountCents: 100})
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCreateSessionRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "amount too small", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk_test", SigningSecret: "s"})

	_, err := c.CreateSession(context.Background(), gateway.SessionRequest{AmountCents: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrUnavailable)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestCreateSessionEmptySessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gateway.Session{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk_test", SigningSecret: "s"})

	_, err := c.CreateSession(context.Background(), gateway.SessionRequest{AmountCents: 100})
	require.Error(t, err)
}
