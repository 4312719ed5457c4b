package paystack_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/infrastructure/fx"
	"vehicle-orders/internal/provider"
)

const testSecret = "sk_test_paystack"

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rates := fx.Static{"USD:NGN": decimal.NewFromInt(1500)}
	return New(Config{SecretKey: testSecret, BaseURL: srv.URL, CallbackURL: "https://shop.example/callback"}, rates, zap.NewNop())
}

func TestInitializePaymentConvertsToLocalMinorUnits(t *testing.T) {
	var got initializeBody
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer "+testSecret, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"AFZ-1"}}`))
	})

	res, err := a.InitializePayment(context.Background(), provider.InitRequest{
		AmountUSD: decimal.RequireFromString("12.34"),
		Email:     "buyer@example.com",
		Reference: "AFZ-1",
		Metadata:  map[string]string{"orderId": "ord-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1851000), got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "AFZ-1", got.Reference)
	assert.Equal(t, "https://shop.example/callback", got.CallbackURL)
	assert.Equal(t, "ord-1", got.Metadata["orderId"])
	assert.Equal(t, "1500", got.Metadata["exchangeRate"])

	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "AFZ-1", res.ProviderReference)
	assert.Equal(t, "NGN", res.Currency)
}

func TestInitializePaymentRejectedUpstream(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid email"}`))
	})

	_, err := a.InitializePayment(context.Background(), provider.InitRequest{AmountUSD: decimal.NewFromInt(10), Reference: "AFZ-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "Invalid email")
}

func TestDisabledAdapterFailsFast(t *testing.T) {
	a := New(Config{}, fx.Static{}, zap.NewNop())
	assert.False(t, a.Enabled())

	_, err := a.InitializePayment(context.Background(), provider.InitRequest{AmountUSD: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	_, err = a.VerifyPayment(context.Background(), "AFZ-1")
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestVerifyPayment(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantOK     bool
		wantReason string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"status":true,"message":"Verification successful","data":{"id":4099260516,"status":"success","reference":"AFZ-1","amount":1851000,"currency":"NGN","gateway_response":"Successful"}}`,
			wantOK: true,
		},
		{
			name:       "abandoned",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Verification successful","data":{"id":1,"status":"abandoned","reference":"AFZ-1","gateway_response":""}}`,
			wantReason: "transaction status abandoned",
		},
		{
			name:       "declined",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"ok","data":{"id":1,"status":"failed","reference":"AFZ-1","gateway_response":"Declined"}}`,
			wantReason: "Declined",
		},
		{
			name:       "unknown reference",
			status:     http.StatusBadRequest,
			body:       `{"status":false,"message":"Transaction reference not found"}`,
			wantReason: "Transaction reference not found",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"status":false,"message":"boom"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/AFZ-1", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := a.VerifyPayment(context.Background(), "AFZ-1")
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUpstream)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.NotEmpty(t, res.Raw)
			if tt.wantOK {
				assert.Equal(t, "4099260516", res.ProviderTransactionID)
			}
		})
	}
}

func TestParseWebhook(t *testing.T) {
	a := New(Config{SecretKey: testSecret}, fx.Static{}, zap.NewNop())
	payload := []byte(`{"event":"charge.success","data":{"id":302961,"reference":"AFZ-9","status":"success"}}`)

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-paystack-signature", Sign(testSecret, payload))
		evt, err := a.ParseWebhook(payload, h)
		require.NoError(t, err)
		assert.Equal(t, "paystack:charge.success:302961", evt.ID)
		assert.Equal(t, "AFZ-9", evt.Reference)
		assert.Equal(t, provider.Paystack, evt.Provider)
	})

	t.Run("tampered body", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-paystack-signature", Sign(testSecret, payload))
		tampered := []byte(`{"event":"charge.success","data":{"id":302961,"reference":"AFZ-10","status":"success"}}`)
		_, err := a.ParseWebhook(tampered, h)
		assert.ErrorIs(t, err, provider.ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := a.ParseWebhook(payload, http.Header{})
		assert.ErrorIs(t, err, provider.ErrInvalidSignature)
	})

	t.Run("other event", func(t *testing.T) {
		other := []byte(`{"event":"transfer.success","data":{"id":1,"reference":"TR-1"}}`)
		h := http.Header{}
		h.Set("x-paystack-signature", Sign(testSecret, other))
		_, err := a.ParseWebhook(other, h)
		assert.True(t, errors.Is(err, provider.ErrIgnoredEvent))
	})
}
