package stripe_provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/provider"
)

const webhookSecret = "whsec_test"

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{SecretKey: "sk_test_123", WebhookSecret: webhookSecret, BaseURL: srv.URL}, zap.NewNop())
}

func sign(payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestInitializePaymentCreatesIntent(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "AFZ-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "699000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "AFZ-1", r.PostForm.Get("metadata[reference]"))
		assert.Equal(t, "ord-1", r.PostForm.Get("metadata[orderId]"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("receipt_email"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","status":"requires_payment_method","amount":699000,"currency":"usd"}`))
	})

	res, err := a.InitializePayment(context.Background(), provider.InitRequest{
		AmountUSD: decimal.NewFromInt(6990),
		Email:     "buyer@example.com",
		Reference: "AFZ-1",
		Metadata:  map[string]string{"orderId": "ord-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret_abc", res.ClientSecret)
	assert.Equal(t, "pi_123", res.ProviderReference)
	assert.Equal(t, "USD", res.Currency)
}

func TestInitializePaymentUpstreamError(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
	})

	_, err := a.InitializePayment(context.Background(), provider.InitRequest{AmountUSD: decimal.NewFromInt(1), Reference: "AFZ-2"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestVerifyPaymentFetchesReceiptFromCharge(t *testing.T) {
	var chargeHits int32
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents/pi_123":
			_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","latest_charge":"ch_123","metadata":{"reference":"AFZ-1"}}`))
		case "/v1/charges/ch_123":
			atomic.AddInt32(&chargeHits, 1)
			_, _ = w.Write([]byte(`{"id":"ch_123","object":"charge","receipt_url":"https://pay.stripe.com/receipts/ch_123"}`))
		default:
			http.NotFound(w, r)
		}
	})

	res, err := a.VerifyPayment(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ch_123", res.ProviderTransactionID)
	assert.Equal(t, "https://pay.stripe.com/receipts/ch_123", res.ReceiptURL)
	assert.Equal(t, int32(1), atomic.LoadInt32(&chargeHits))
	assert.NotEmpty(t, res.Raw)
}

func TestVerifyPaymentUsesExpandedCharge(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","latest_charge":{"id":"ch_9","object":"charge","receipt_url":"https://pay.stripe.com/receipts/ch_9"}}`))
	})

	res, err := a.VerifyPayment(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "https://pay.stripe.com/receipts/ch_9", res.ReceiptURL)
}

func TestVerifyPaymentNotSucceeded(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"requires_payment_method"}`))
	})

	res, err := a.VerifyPayment(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "payment intent status requires_payment_method", res.Reason)
}

func TestVerifyPaymentUnknownIntent(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent: 'pi_x'"}}`))
	})

	res, err := a.VerifyPayment(context.Background(), "pi_x")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "No such payment_intent")
}

func TestDisabledAdapter(t *testing.T) {
	a := New(Config{}, zap.NewNop())
	assert.False(t, a.Enabled())

	_, err := a.InitializePayment(context.Background(), provider.InitRequest{})
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
	_, err = a.VerifyPayment(context.Background(), "pi_1")
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
	_, err = a.ParseWebhook([]byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestParseWebhook(t *testing.T) {
	a := New(Config{WebhookSecret: webhookSecret}, zap.NewNop())
	event := func(typ, ref string) []byte {
		return []byte(strings.NewReplacer("{TYPE}", typ, "{REF}", ref).Replace(
			`{"id":"evt_1","object":"event","api_version":"2023-10-16","type":"{TYPE}","data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded","metadata":{"reference":"{REF}"}}}}`))
	}

	t.Run("succeeded", func(t *testing.T) {
		payload := event("payment_intent.succeeded", "AFZ-7")
		h := http.Header{}
		h.Set("Stripe-Signature", sign(payload, time.Now()))
		evt, err := a.ParseWebhook(payload, h)
		require.NoError(t, err)
		assert.Equal(t, "stripe:evt_1", evt.ID)
		assert.Equal(t, "AFZ-7", evt.Reference)
		assert.Equal(t, "payment_intent.succeeded", evt.Type)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := event("payment_intent.succeeded", "AFZ-7")
		h := http.Header{}
		h.Set("Stripe-Signature", sign([]byte("something else"), time.Now()))
		_, err := a.ParseWebhook(payload, h)
		assert.ErrorIs(t, err, provider.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		payload := event("payment_intent.succeeded", "AFZ-7")
		h := http.Header{}
		h.Set("Stripe-Signature", sign(payload, time.Now().Add(-time.Hour)))
		_, err := a.ParseWebhook(payload, h)
		assert.ErrorIs(t, err, provider.ErrInvalidSignature)
	})

	t.Run("ignored type", func(t *testing.T) {
		payload := event("customer.created", "AFZ-7")
		h := http.Header{}
		h.Set("Stripe-Signature", sign(payload, time.Now()))
		_, err := a.ParseWebhook(payload, h)
		assert.ErrorIs(t, err, provider.ErrIgnoredEvent)
	})

	t.Run("no reference", func(t *testing.T) {
		payload := event("payment_intent.payment_failed", "")
		h := http.Header{}
		h.Set("Stripe-Signature", sign(payload, time.Now()))
		_, err := a.ParseWebhook(payload, h)
		assert.ErrorIs(t, err, provider.ErrIgnoredEvent)
	})
}
