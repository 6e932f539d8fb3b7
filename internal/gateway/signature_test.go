package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier("whsec_test", now)

	body := []byte(`{"type":"payment.completed","session_id":"cs_123"}`)
	header := v.Sign(now, body)

	require.NoError(t, v.Verify(header, body))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier("whsec_test", now)

	header := v.Sign(now, []byte(`{"session_id":"cs_123"}`))

	err := v.Verify(header, []byte(`{"session_id":"cs_999"}`))
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)

	header := newTestVerifier("whsec_a", now).Sign(now, body)

	err := newTestVerifier("whsec_b", now).Verify(header, body)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier("whsec_test", now)

	body := []byte(`{}`)
	header := v.Sign(now.Add(-DefaultTolerance-time.Second), body)

	err := v.Verify(header, body)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyAcceptsSkewWithinTolerance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier("whsec_test", now)

	body := []byte(`{}`)

	assert.NoError(t, v.Verify(v.Sign(now.Add(-time.Minute), body), body))
	assert.NoError(t, v.Verify(v.Sign(now.Add(time.Minute), body), body))
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	v := newTestVerifier("whsec_test", time.Unix(1_700_000_000, 0))

	for _, header := range []string{
		"",
		"t=notanumber,v1=abcd",
		"t=1700000000",
		"v1=deadbeef",
		"t=1700000000,v1=zzzz",
	} {
		err := v.Verify(header, []byte(`{}`))
		assert.ErrorIs(t, err, ErrBadSignature, "header %q", header)
	}
}
