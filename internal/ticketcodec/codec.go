package ticketcodec

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Codec turns a ticket token into a scannable artifact. Encoding is
// deterministic for a given token; the engine stores and serves the blob
// without inspecting it.
type Codec interface {
	Encode(ctx context.Context, token string) ([]byte, error)
}

// HTTPCodec asks an external encoder service for the artifact.
type HTTPCodec struct {
	endpoint string
	hc       *http.Client
}

func NewHTTP(endpoint string) *HTTPCodec {
	return &HTTPCodec{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCodec) Encode(ctx context.Context, token string) ([]byte, error) {
	const op = "ticketcodec.HTTPCodec.Encode"

	u := c.endpoint + "?token=" + url.QueryEscape(token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return blob, nil
}

// Inline is the development codec: a data URL carrying the token itself.
// Deterministic and dependency-free, good enough for tests and local runs.
type Inline struct{}

func (Inline) Encode(_ context.Context, token string) ([]byte, error) {
	return []byte("data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(token))), nil
}
