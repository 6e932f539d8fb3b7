package httpgin

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaminskyi/eventbook/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	got []gateway.Notification
	err error
}

func (f *fakeProcessor) HandleNotification(_ context.Context, n gateway.Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func newWebhookRouter(secret string, proc notificationProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payments/webhook", handlePaymentWebhook(gateway.NewVerifier(secret), proc))
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, secret, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	if sign {
		header := gateway.NewVerifier(secret).Sign(time.Now(), []byte(body))
		req.Header.Set("Webhook-Signature", header)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook_SignedDeliveryIsProcessed(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter("whsec_test", proc)

	body := `{"type":"payment.completed","session_id":"cs_123"}`
	w := postWebhook(t, r, "whsec_test", body, true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, proc.got, 1)
	assert.Equal(t, gateway.EventPaymentCompleted, proc.got[0].Type)
	assert.Equal(t, "cs_123", proc.got[0].SessionID)
}

func TestPaymentWebhook_MissingSignatureRejected(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter("whsec_test", proc)

	w := postWebhook(t, r, "whsec_test", `{"type":"payment.completed","session_id":"cs_123"}`, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, proc.got)
}

func TestPaymentWebhook_WrongSecretRejected(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter("whsec_real", proc)

	body := `{"type":"payment.completed","session_id":"cs_123"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	req.Header.Set("Webhook-Signature", gateway.NewVerifier("whsec_forged").Sign(time.Now(), []byte(body)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, proc.got)
}

func TestPaymentWebhook_MalformedPayloadRejected(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter("whsec_test", proc)

	w := postWebhook(t, r, "whsec_test", `{"type":`, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, proc.got)
}

func TestPaymentWebhook_ProcessingFailureTriggersRetry(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	r := newWebhookRouter("whsec_test", proc)

	body := `{"type":"payment.failed","session_id":"cs_456"}`
	w := postWebhook(t, r, "whsec_test", body, true)

	// Non-2xx so the provider redelivers later.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, proc.got, 1)
}
