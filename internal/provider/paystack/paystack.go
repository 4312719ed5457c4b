package paystack_provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/infrastructure/fx"
	"vehicle-orders/internal/provider"
)

const (
	DefaultBaseURL  = "https://api.paystack.co"
	signatureHeader = "X-Paystack-Signature"
	eventChargeOK   = "charge.success"
)

type Config struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
	Currency    string
	Timeout     time.Duration
}

// Adapter charges in the local currency. USD amounts are converted with the
// configured rate provider before the transaction is opened.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	rates      fx.RateProvider
	logger     *zap.Logger
}

func New(cfg Config, rates fx.RateProvider, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		rates:      rates,
		logger:     logger,
	}
}

func (a *Adapter) Name() provider.Name { return provider.Paystack }

func (a *Adapter) Enabled() bool { return a.cfg.SecretKey != "" }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	ID              json.Number `json:"id"`
	Status          string      `json:"status"`
	Reference       string      `json:"reference"`
	Amount          int64       `json:"amount"`
	Currency        string      `json:"currency"`
	GatewayResponse string      `json:"gateway_response"`
	ReceiptNumber   string      `json:"receipt_number"`
}

func (a *Adapter) InitializePayment(ctx context.Context, req provider.InitRequest) (*provider.InitResult, error) {
	if !a.Enabled() {
		return nil, a.upstream("initialize", provider.ErrNotConfigured)
	}

	rate, err := a.rates.Rate(ctx, "USD", a.cfg.Currency)
	if err != nil {
		return nil, a.upstream("exchange rate", err)
	}
	local := req.AmountUSD.Mul(rate).Round(2)

	metadata := map[string]any{
		"reference":    req.Reference,
		"amountUsd":    req.AmountUSD.StringFixed(2),
		"exchangeRate": rate.String(),
		"localAmount":  local.StringFixed(2),
	}
	if req.Breakdown != nil {
		metadata["breakdown"] = req.Breakdown
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	body := initializeBody{
		Email:       req.Email,
		Amount:      provider.MinorUnits(local),
		Currency:    a.cfg.Currency,
		Reference:   req.Reference,
		CallbackURL: a.cfg.CallbackURL,
		Metadata:    metadata,
	}

	status, env, _, err := a.makeRequest(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, a.upstream("initialize", err)
	}
	if status != http.StatusOK || !env.Status {
		return nil, a.upstream("initialize", fmt.Errorf("status %d: %s", status, env.Message))
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, a.upstream("initialize", fmt.Errorf("decode response: %w", err))
	}
	ref := data.Reference
	if ref == "" {
		ref = req.Reference
	}

	a.logger.Info("Paystack transaction initialized",
		zap.String("reference", ref),
		zap.String("currency", a.cfg.Currency),
		zap.String("local_amount", local.StringFixed(2)))

	return &provider.InitResult{
		AuthorizationURL:  data.AuthorizationURL,
		ProviderReference: ref,
		Currency:          a.cfg.Currency,
		Metadata: map[string]any{
			"accessCode":   data.AccessCode,
			"exchangeRate": rate.String(),
			"localAmount":  local.StringFixed(2),
			"currency":     a.cfg.Currency,
		},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, reference string) (*provider.VerifyResult, error) {
	if !a.Enabled() {
		return nil, a.upstream("verify", provider.ErrNotConfigured)
	}

	status, env, raw, err := a.makeRequest(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, a.upstream("verify", err)
	}
	if status >= http.StatusInternalServerError {
		return nil, a.upstream("verify", fmt.Errorf("status %d: %s", status, env.Message))
	}
	if status != http.StatusOK || !env.Status {
		return &provider.VerifyResult{Success: false, Reason: env.Message, Raw: raw}, nil
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, a.upstream("verify", fmt.Errorf("decode response: %w", err))
	}
	if data.Status != "success" {
		reason := data.GatewayResponse
		if reason == "" {
			reason = "transaction status " + data.Status
		}
		return &provider.VerifyResult{Success: false, Reason: reason, Raw: raw}, nil
	}

	return &provider.VerifyResult{
		Success:               true,
		ProviderTransactionID: data.ID.String(),
		ReceiptURL:            data.ReceiptNumber,
		Raw:                   raw,
	}, nil
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ParseWebhook authenticates the payload with the HMAC-SHA512 of the raw body
// keyed by the secret key.
func (a *Adapter) ParseWebhook(payload []byte, header http.Header) (*provider.WebhookEvent, error) {
	if !a.Enabled() {
		return nil, a.upstream("webhook", provider.ErrNotConfigured)
	}
	if !a.validSignature(payload, header.Get(signatureHeader)) {
		return nil, provider.ErrInvalidSignature
	}

	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, domain.NewValidationError("malformed webhook payload")
	}
	if p.Event != eventChargeOK || p.Data.Reference == "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrIgnoredEvent, p.Event)
	}

	return &provider.WebhookEvent{
		ID:        fmt.Sprintf("paystack:%s:%s", p.Event, p.Data.ID.String()),
		Provider:  provider.Paystack,
		Type:      p.Event,
		Reference: p.Data.Reference,
	}, nil
}

// Sign returns the signature Paystack would send for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(a.cfg.SecretKey, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (a *Adapter) makeRequest(ctx context.Context, method, path string, payload any) (int, *envelope, []byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	env := &envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return resp.StatusCode, nil, raw, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, env, raw, nil
}

func (a *Adapter) upstream(op string, err error) error {
	return &domain.UpstreamError{Provider: string(provider.Paystack), Op: op, Err: err}
}

