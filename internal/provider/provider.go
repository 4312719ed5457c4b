package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"vehicle-orders/internal/domain"
)

// Name identifies a payment processor. The set is closed: ParseName rejects
// anything else.
type Name string

const (
	Stripe   Name = "stripe"
	Paystack Name = "paystack"
)

func ParseName(value string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(value))); n {
	case Stripe, Paystack:
		return n, nil
	}
	return "", domain.NewValidationError("unsupported payment provider",
		domain.FieldError{Field: "provider", Message: "must be one of stripe, paystack"})
}

var (
	ErrNotConfigured    = errors.New("payment provider is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("webhook event does not trigger settlement")
)

type InitRequest struct {
	AmountUSD decimal.Decimal
	Email     string
	Reference string
	Breakdown *domain.PriceBreakdown
	Metadata  map[string]string
}

// InitResult is the client handle returned unchanged to the caller: a hosted
// checkout URL or a client secret, depending on the processor.
type InitResult struct {
	AuthorizationURL  string
	ClientSecret      string
	ProviderReference string
	Currency          string
	Metadata          map[string]any
}

// VerifyResult is the processor's determination for a reference. A declined
// or unfinished payment is Success=false, never an error.
type VerifyResult struct {
	Success               bool
	ProviderTransactionID string
	ReceiptURL            string
	Reason                string
	Raw                   json.RawMessage
}

// Adapter hides one processor's API shape. Initialization errors are only
// returned for configuration or transport failures.
type Adapter interface {
	Name() Name
	Enabled() bool
	InitializePayment(ctx context.Context, req InitRequest) (*InitResult, error)
	VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error)
}

// WebhookEvent is an authenticated provider notification reduced to what
// settlement needs. ID is unique per provider event and drives deduplication.
type WebhookEvent struct {
	ID        string
	Provider  Name
	Type      string
	Reference string
}

type WebhookParser interface {
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// Registry is the single place adapters are selected by name.
type Registry struct {
	adapters map[Name]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Name]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name Name) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, domain.NewValidationError("unsupported payment provider",
			domain.FieldError{Field: "provider", Message: fmt.Sprintf("provider %q is not available", name)})
	}
	return a, nil
}

func (r *Registry) WebhookParser(name Name) (WebhookParser, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	p, ok := a.(WebhookParser)
	if !ok {
		return nil, domain.NewValidationError("provider does not accept webhooks",
			domain.FieldError{Field: "provider", Message: string(name)})
	}
	return p, nil
}

// Names lists registered providers in stable order.
func (r *Registry) Names() []Name {
	out := make([]Name, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MinorUnits converts a major-unit amount to the processor's integer minor
// units, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
