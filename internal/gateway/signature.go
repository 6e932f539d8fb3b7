package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how far a webhook's signed timestamp may drift from
// the receiver's clock before the notification is rejected as stale.
const DefaultTolerance = 5 * time.Minute

// Verifier checks the provider's signature header on inbound notifications.
// The header carries the signing timestamp and an HMAC over it and the raw
// body:
//
//	Webhook-Signature: t=<unix>,v1=<hex hmac_sha256(secret, "<unix>.<body>")>
//
// Every notification is treated as untrusted input until Verify succeeds.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// Verify validates header against body. It returns ErrBadSignature for any
// malformed, stale, or forged input.
func (v *Verifier) Verify(header string, body []byte) error {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	at := time.Unix(ts, 0)
	if d := v.now().Sub(at); d > v.tolerance || d < -v.tolerance {
		return fmt.Errorf("timestamp outside tolerance: %w", ErrBadSignature)
	}

	if !hmac.Equal(sig, v.sign(ts, body)) {
		return ErrBadSignature
	}

	return nil
}

// Sign produces a header value Verify accepts. Used by the checkout client's
// tests and local tooling to forge valid deliveries.
func (v *Verifier) Sign(at time.Time, body []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(v.sign(ts, body)))
}

func (v *Verifier) sign(ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (ts int64, sig []byte, err error) {
	var tsSeen, sigSeen bool

	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		switch k {
		case "t":
			ts, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp: %w", ErrBadSignature)
			}
			tsSeen = true
		case "v1":
			sig, err = hex.DecodeString(val)
			if err != nil {
				return 0, nil, fmt.Errorf("bad signature encoding: %w", ErrBadSignature)
			}
			sigSeen = true
		}
	}

	if !tsSeen || !sigSeen {
		return 0, nil, fmt.Errorf("missing signature fields: %w", ErrBadSignature)
	}

	return ts, sig, nil
}
