package stripe_provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/provider"
)

const signatureHeader = "Stripe-Signature"

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint, for tests and stripe-mock.
	BaseURL string
	Timeout time.Duration
}

// Adapter charges in USD through PaymentIntents. The order reference travels
// in the intent metadata so webhooks can be matched back to a payment.
type Adapter struct {
	cfg    Config
	api    *client.API
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	a := &Adapter{cfg: cfg, logger: logger}
	if cfg.SecretKey == "" {
		return a
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	a.api = client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return a
}

func (a *Adapter) Name() provider.Name { return provider.Stripe }

func (a *Adapter) Enabled() bool { return a.api != nil }

func (a *Adapter) InitializePayment(ctx context.Context, req provider.InitRequest) (*provider.InitResult, error) {
	if !a.Enabled() {
		return nil, a.upstream("initialize", provider.ErrNotConfigured)
	}

	amount := provider.MinorUnits(req.AmountUSD)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata("reference", req.Reference)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, a.upstream("initialize", err)
	}

	a.logger.Info("Stripe payment intent created",
		zap.String("reference", req.Reference),
		zap.String("payment_intent", pi.ID),
		zap.Int64("amount_cents", amount))

	return &provider.InitResult{
		ClientSecret:      pi.ClientSecret,
		ProviderReference: pi.ID,
		Currency:          "USD",
		Metadata: map[string]any{
			"paymentIntentId": pi.ID,
			"amountCents":     amount,
		},
	}, nil
}

// VerifyPayment looks up the payment intent by id. The receipt comes from the
// latest charge, fetched separately when the intent does not embed it.
func (a *Adapter) VerifyPayment(ctx context.Context, reference string) (*provider.VerifyResult, error) {
	if !a.Enabled() {
		return nil, a.upstream("verify", provider.ErrNotConfigured)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := a.api.PaymentIntents.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			raw, _ := json.Marshal(stripeErr)
			return &provider.VerifyResult{Success: false, Reason: stripeErr.Msg, Raw: raw}, nil
		}
		return nil, a.upstream("verify", err)
	}

	raw := rawJSON(pi)
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return &provider.VerifyResult{
			Success: false,
			Reason:  fmt.Sprintf("payment intent status %s", pi.Status),
			Raw:     raw,
		}, nil
	}

	res := &provider.VerifyResult{Success: true, ProviderTransactionID: pi.ID, Raw: raw}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		res.ProviderTransactionID = pi.LatestCharge.ID
		res.ReceiptURL = pi.LatestCharge.ReceiptURL
		if res.ReceiptURL == "" {
			res.ReceiptURL = a.receiptURL(ctx, pi.LatestCharge.ID)
		}
	}
	return res, nil
}

func (a *Adapter) receiptURL(ctx context.Context, chargeID string) string {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := a.api.Charges.Get(chargeID, params)
	if err != nil {
		a.logger.Warn("Failed to fetch charge receipt", zap.String("charge", chargeID), zap.Error(err))
		return ""
	}
	return ch.ReceiptURL
}

// ParseWebhook verifies the Stripe-Signature header and extracts the order
// reference from the payment intent metadata.
func (a *Adapter) ParseWebhook(payload []byte, header http.Header) (*provider.WebhookEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, a.upstream("webhook", provider.ErrNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header.Get(signatureHeader), a.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrIgnoredEvent, eventType)
	}

	var pi stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil {
		return nil, domain.NewValidationError("malformed webhook payload")
	}
	ref := pi.Metadata["reference"]
	if ref == "" {
		return nil, fmt.Errorf("%w: payment intent %s has no reference", provider.ErrIgnoredEvent, pi.ID)
	}

	return &provider.WebhookEvent{
		ID:        "stripe:" + event.ID,
		Provider:  provider.Stripe,
		Type:      eventType,
		Reference: ref,
	}, nil
}

func rawJSON(pi *stripe.PaymentIntent) json.RawMessage {
	if pi.LastResponse != nil && len(pi.LastResponse.RawJSON) > 0 {
		return json.RawMessage(pi.LastResponse.RawJSON)
	}
	raw, err := json.Marshal(pi)
	if err != nil {
		return nil
	}
	return raw
}

func (a *Adapter) upstream(op string, err error) error {
	return &domain.UpstreamError{Provider: string(provider.Stripe), Op: op, Err: err}
}
