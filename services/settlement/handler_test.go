package settlement

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"eventpay/services/gateway"
	"eventpay/services/payment"
	"eventpay/services/registration"
)

const webhookServerKey = "sk-webhook-test"

func newWebhookFixture(t *testing.T) (*fixture, *gin.Engine) {
	t.Helper()

	f := newFixture(t)

	gin.SetMode(gin.TestMode)
	engine := gin.New()

	gw := gateway.NewPaymentGateway("http://gateway", webhookServerKey, nil)
	registerRoutes(engine, NewHandler(f.svc, gw))

	return f, engine
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookServerKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(engine *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-callback-signature", signature)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f, engine := newWebhookFixture(t)

	f.seedEvent(t, &registration.Event{ID: "evt-1", OrganizerID: "org-1", Capacity: 10})
	f.seedPayment(t, &payment.Payment{ID: "pay-1", OrderCode: "PAY-1", UserID: "user-1", EventID: "evt-1", Amount: 50_000})

	body := []byte(`{"order_id":"PAY-1","transaction_status":"settlement"}`)

	rec := postWebhook(engine, body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(engine, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The payment must be untouched.
	require.Equal(t, string(payment.StatusPending), f.payment(t, "pay-1").Status)
}

func TestWebhookSettlesPayment(t *testing.T) {
	f, engine := newWebhookFixture(t)

	f.seedEvent(t, &registration.Event{ID: "evt-1", OrganizerID: "org-1", Capacity: 10, StartAt: time.Now().Add(200 * time.Hour)})
	f.seedPayment(t, &payment.Payment{ID: "pay-1", OrderCode: "PAY-1", UserID: "user-1", EventID: "evt-1", Amount: 50_000})

	body := []byte(`{"order_id":"PAY-1","reference":"gw-1","transaction_status":"settlement"}`)

	rec := postWebhook(engine, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	require.Equal(t, string(payment.StatusPaid), f.payment(t, "pay-1").Status)

	// Redelivering the same webhook still answers 200.
	rec = postWebhook(engine, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAcceptsAuthenticatedGarbage(t *testing.T) {
	_, engine := newWebhookFixture(t)

	body := []byte(`{"transaction_status":"settlement"}`)
	rec := postWebhook(engine, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAcceptsUnknownOrder(t *testing.T) {
	_, engine := newWebhookFixture(t)

	body := []byte(`{"order_id":"PAY-GHOST","transaction_status":"settlement"}`)
	rec := postWebhook(engine, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)
}
