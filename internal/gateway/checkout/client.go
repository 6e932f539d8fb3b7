package checkout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaminskyi/eventbook/internal/gateway"
)

// Client talks to the hosted-checkout provider. Requests are signed with an
// HMAC over the body so the provider can authenticate the merchant.
type Client struct {
	baseURL       string
	apiKey        string
	signingSecret []byte
	hc            *http.Client
}

type Config struct {
	BaseURL       string
	APIKey        string
	SigningSecret string
	Timeout       time.Duration
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		signingSecret: []byte(cfg.SigningSecret),
		hc:            &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateSession opens a hosted-checkout session for the given amount and
// returns the provider's session handle. Transport errors and provider 5xx
// responses map to gateway.ErrUnavailable so callers can retry the step with
// the same booking.
func (c *Client) CreateSession(ctx context.Context, sreq gateway.SessionRequest) (gateway.Session, error) {
	const op = "checkout.Client.CreateSession"

	body, err := json.Marshal(sreq)
	if err != nil {
		return gateway.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/checkout/sessions",
		bytes.NewReader(body),
	)
	if err != nil {
		return gateway.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Request-Signature", c.signBody(body))

	resp, err := c.hc.Do(req)
	if err != nil {
		return gateway.Session{}, fmt.Errorf("%s: %w: %w", op, gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return gateway.Session{}, fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, gateway.ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return gateway.Session{}, fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, rbody)
	}

	var session gateway.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return gateway.Session{}, fmt.Errorf("%s: decode: %w", op, err)
	}

	if session.ID == "" {
		return gateway.Session{}, fmt.Errorf("%s: provider returned empty session id", op)
	}

	return session, nil
}

func (c *Client) signBody(body []byte) string {
	mac := hmac.New(sha256.New, c.signingSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
