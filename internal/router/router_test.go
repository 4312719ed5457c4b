package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/fees"
	"vehicle-orders/internal/app/orders"
	"vehicle-orders/internal/app/payments"
	"vehicle-orders/internal/app/pricing"
	"vehicle-orders/internal/config"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/auth"
	"vehicle-orders/internal/infrastructure/cache"
	"vehicle-orders/internal/infrastructure/fx"
	"vehicle-orders/internal/provider"
	paystack_provider "vehicle-orders/internal/provider/paystack"
	"vehicle-orders/internal/repository/memory"
)

const (
	jwtSecret      = "test-jwt-secret"
	paystackSecret = "sk_test_router"
)

type testServer struct {
	handler     http.Handler
	verifyCalls atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/transaction/initialize":
			var body struct {
				Reference string `json:"reference"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/%s","access_code":"ac","reference":"%s"}}`, body.Reference, body.Reference)
		case strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
			ts.verifyCalls.Add(1)
			ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
			fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"id":991,"status":"success","reference":"%s","receipt_number":"R-991"}}`, ref)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(gateway.Close)

	store := memory.NewStore()
	store.AddVehicle(domain.VehicleSnapshot{ID: "veh-1", Make: "Toyota", Model: "Camry", Year: 2021, PriceUSD: decimal.NewFromInt(20000)})
	store.SetDefaultAddress("user-1", domain.Destination{FullName: "Ada", Street: "1 Marina", City: "Lagos", Country: "NG"})

	logger := zap.NewNop()
	feeSvc := fees.NewFeeService(store, store.Fees(), store.ActivityLog(), cache.Noop{}, time.Minute, logger)
	orderSvc := orders.NewOrderService(store, store.Orders(), store.Outbox(), store.ActivityLog(), store, store,
		pricing.NewCalculator(feeSvc), "vehicle_order_events", logger)

	paystack := paystack_provider.New(paystack_provider.Config{SecretKey: paystackSecret, BaseURL: gateway.URL},
		fx.Static{"USD:NGN": decimal.NewFromInt(1500)}, logger)
	paymentSvc := payments.NewPaymentService(store, store.Payments(), store.Orders(), store.Outbox(), store.Inbox(), orderSvc,
		provider.NewRegistry(paystack), feeSvc, nil, "vehicle_order_events", "payment_webhooks", logger)

	cfg := &config.Config{HTTPRequestTimeout: 5 * time.Second, CORSAllowedOrigins: []string{"http://localhost:5173"}}
	ts.handler = NewRouter(cfg, Services{Orders: orderSvc, Payments: paymentSvc, Fees: feeSvc}, auth.NewVerifier(jwtSecret), logger)
	return ts
}

func token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: userID + "@example.com",
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set("X-Paystack-Signature", signature)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/orders/my-orders", "/payments/my-payments", "/admin/fees"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "UNAUTHORIZED", decode[errorResponse](t, rec).Error.Code)
	}
}

// depositPendingOrder walks a fresh order through the quote handshake.
func depositPendingOrder(t *testing.T, ts *testServer, user, admin string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/orders", user, map[string]string{"vehicleId": "veh-1", "shippingMethod": "RORO"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[orders.OrderResponse](t, rec)
	assert.Equal(t, "PENDING_QUOTE", order.Status)

	rec = ts.do(t, http.MethodPut, "/orders/"+order.ID+"/status", admin, map[string]string{"status": "QUOTE_SENT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/orders/"+order.ID+"/quote-response", user, map[string]bool{"accept": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPut, "/orders/"+order.ID+"/status", admin, map[string]string{"status": "DEPOSIT_PENDING"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return order.ID
}

func TestDepositSettledByWebhookThenVerify(t *testing.T) {
	ts := newTestServer(t)
	user := token(t, "user-1", domain.RoleUser)
	admin := token(t, "admin-1", domain.RoleAdmin)
	orderID := depositPendingOrder(t, ts, user, admin)

	rec := ts.do(t, http.MethodPost, "/payments/init", user, map[string]string{
		"orderId": orderID, "provider": "paystack", "paymentType": "DEPOSIT",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	initRes := decode[payments.InitiatePaymentResponse](t, rec)
	assert.Equal(t, "https://checkout.paystack.com/"+initRes.Reference, initRes.AuthorizationURL)
	assert.True(t, initRes.AmountUSD.Equal(decimal.NewFromInt(6990)), initRes.AmountUSD.String())

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":991,"reference":%q,"status":"success"}}`, initRes.Reference))
	sig := paystack_provider.Sign(paystackSecret, payload)

	rec = ts.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), ts.verifyCalls.Load())

	rec = ts.do(t, http.MethodGet, "/orders/"+orderID, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DEPOSIT_PAID", decode[orders.OrderResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPatch, "/payments/verify/"+initRes.Reference+"?provider=paystack", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[payments.SettlementResult](t, rec)
	assert.True(t, result.AlreadyCompleted)
	assert.Equal(t, "COMPLETED", result.Status)
	assert.Equal(t, int32(1), ts.verifyCalls.Load())

	rec = ts.do(t, http.MethodGet, "/payments/order/"+orderID, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]payments.PaymentResponse](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/orders/"+orderID+"/history", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]orders.StatusChangeResponse](t, rec)
	require.NotEmpty(t, history)
	assert.Equal(t, "DEPOSIT_PAID", history[len(history)-1].To)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"event":"charge.success","data":{"id":1,"reference":"AFZ-X"}}`)

	rec := ts.webhook(t, payload, paystack_provider.Sign("wrong-secret", payload))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), ts.verifyCalls.Load())
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"event":"transfer.success","data":{"id":1,"reference":"AFZ-X"}}`)

	rec := ts.webhook(t, payload, paystack_provider.Sign(paystackSecret, payload))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	user := token(t, "user-1", domain.RoleUser)
	other := token(t, "user-2", domain.RoleUser)
	admin := token(t, "admin-1", domain.RoleAdmin)

	rec := ts.do(t, http.MethodPost, "/orders", user, map[string]string{"vehicleId": "veh-1", "shippingMethod": "RORO"})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode[orders.OrderResponse](t, rec).ID

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   any
		status int
		code   string
	}{
		{"stranger read", http.MethodGet, "/orders/" + orderID, other, nil, http.StatusForbidden, "FORBIDDEN"},
		{"unknown order", http.MethodGet, "/orders/missing", admin, nil, http.StatusNotFound, "NOT_FOUND"},
		{"illegal transition", http.MethodPut, "/orders/" + orderID + "/status", admin, map[string]string{"status": "SHIPPED"}, http.StatusBadRequest, "STATE_CONFLICT"},
		{"unknown status", http.MethodPut, "/orders/" + orderID + "/status", admin, map[string]string{"status": "FLYING"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"user status change", http.MethodPut, "/orders/" + orderID + "/status", user, map[string]string{"status": "QUOTE_SENT"}, http.StatusForbidden, "FORBIDDEN"},
		{"cancel without reason", http.MethodPost, "/orders/" + orderID + "/cancel", user, map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/orders", user, map[string]string{"vehicle": "veh-1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", http.MethodGet, "/orders?limit=-1", admin, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown provider", http.MethodPost, "/payments/init", user, map[string]string{"orderId": orderID, "provider": "paypal", "paymentType": "DEPOSIT"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed order id", http.MethodGet, "/orders/not-a-uuid/history", user, nil, http.StatusNotFound, "NOT_FOUND"},
		{"malformed payment order id", http.MethodPost, "/payments/init", user, map[string]string{"orderId": "x", "provider": "paystack", "paymentType": "DEPOSIT"}, http.StatusNotFound, "NOT_FOUND"},
		{"malformed payment id", http.MethodGet, "/payments/x", admin, nil, http.StatusNotFound, "NOT_FOUND"},
		{"malformed bulk member", http.MethodPut, "/orders/bulk/status", admin, map[string]any{"orderIds": []string{orderID, "x"}, "status": "QUOTE_SENT"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Error.Code)
		})
	}
}

func TestCancelAndDelete(t *testing.T) {
	ts := newTestServer(t)
	user := token(t, "user-1", domain.RoleUser)
	admin := token(t, "admin-1", domain.RoleAdmin)

	rec := ts.do(t, http.MethodPost, "/orders", user, map[string]string{"vehicleId": "veh-1", "shippingMethod": "CONTAINER"})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode[orders.OrderResponse](t, rec).ID

	rec = ts.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", user, map[string]string{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", decode[orders.OrderResponse](t, rec).Status)

	rec = ts.do(t, http.MethodDelete, "/orders/"+orderID, admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/orders/"+orderID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPricingQuote(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/pricing/quote?price=20000&shippingMethod=RORO", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote struct {
		ChargeTotal     decimal.Decimal `json:"chargeTotal"`
		LandedCostTotal decimal.Decimal `json:"landedCostTotal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.True(t, quote.ChargeTotal.Equal(decimal.NewFromInt(23300)), quote.ChargeTotal.String())
	assert.True(t, quote.LandedCostTotal.Equal(decimal.NewFromInt(32000)), quote.LandedCostTotal.String())

	rec = ts.do(t, http.MethodGet, "/pricing/quote?price=abc&shippingMethod=RORO", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/pricing/quote?price=100&shippingMethod=TELEPORT", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeeAdministration(t *testing.T) {
	ts := newTestServer(t)
	user := token(t, "user-1", domain.RoleUser)
	admin := token(t, "admin-1", domain.RoleAdmin)

	rec := ts.do(t, http.MethodGet, "/admin/fees", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/fees", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode[domain.FeeSettings](t, rec)
	assert.True(t, settings.SourcingFeePercent.Equal(decimal.NewFromInt(5)))

	rec = ts.do(t, http.MethodPut, "/admin/fees", admin, map[string]any{"vatPercent": 8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[domain.FeeSettings](t, rec)
	assert.Equal(t, "admin-1", patched.UpdatedBy)
	assert.True(t, patched.VATPercent.Equal(decimal.NewFromInt(8)))
	assert.True(t, patched.SourcingFeePercent.Equal(decimal.NewFromInt(5)), "omitted fields keep their value")
	assert.True(t, patched.ImportDutyPercent.Equal(settings.ImportDutyPercent))
	assert.True(t, patched.ShippingCostUSD.Equal(settings.ShippingCostUSD))

	rec = ts.do(t, http.MethodGet, "/pricing/quote?price=20000&shippingMethod=RORO", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[struct {
		ChargeTotal decimal.Decimal `json:"chargeTotal"`
	}](t, rec)
	assert.True(t, totals.ChargeTotal.Equal(decimal.NewFromInt(23300)), totals.ChargeTotal.String())

	rec = ts.do(t, http.MethodPut, "/admin/fees", admin, map[string]any{"sourcingFeePercent": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/pricing/quote?price=20000&shippingMethod=RORO", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[struct {
		Breakdown domain.PriceBreakdown `json:"breakdown"`
	}](t, rec)
	assert.True(t, quote.Breakdown.SourcingFeeUSD.Equal(decimal.NewFromInt(2000)), quote.Breakdown.SourcingFeeUSD.String())
	assert.True(t, quote.Breakdown.VATUSD.Equal(decimal.NewFromInt(1600)), quote.Breakdown.VATUSD.String())

	rec = ts.do(t, http.MethodPut, "/admin/fees", admin, map[string]any{"vatPercent": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorResponse](t, rec).Error.Code)
}
