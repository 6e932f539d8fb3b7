package ticketcodec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineDeterministic(t *testing.T) {
	var c Inline

	a, err := c.Encode(context.Background(), "cust_1_abc")
	require.NoError(t, err)

	b, err := c.Encode(context.Background(), "cust_1_abc")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, string(a), "data:text/plain;base64,")
}

func TestHTTPCodec(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-123", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte("PNGBLOB"))
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL)

	blob, err := c.Encode(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, []byte("PNGBLOB"), blob)
}

func TestHTTPCodecErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL)

	_, err := c.Encode(context.Background(), "tok-123")
	require.Error(t, err)
}
