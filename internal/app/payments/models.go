package payments

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"vehicle-orders/internal/domain"
)

type InitiatePaymentRequest struct {
	OrderID     string `json:"orderId"`
	Provider    string `json:"provider"`
	PaymentType string `json:"paymentType"`
	// AmountUSD is only read for PARTIAL_REFUND.
	AmountUSD *decimal.Decimal `json:"amountUsd,omitempty"`
}

type InitiatePaymentResponse struct {
	PaymentID        string                `json:"paymentId"`
	Reference        string                `json:"reference"`
	Provider         string                `json:"provider"`
	PaymentType      string                `json:"paymentType"`
	AmountUSD        decimal.Decimal       `json:"amountUsd"`
	Currency         string                `json:"currency"`
	AuthorizationURL string                `json:"authorizationUrl,omitempty"`
	ClientSecret     string                `json:"clientSecret,omitempty"`
	Breakdown        domain.PriceBreakdown `json:"breakdown"`
}

type SettlementResult struct {
	Reference        string           `json:"reference"`
	Status           string           `json:"status"`
	AlreadyCompleted bool             `json:"alreadyCompleted"`
	OrderStatus      string           `json:"orderStatus,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Payment          *PaymentResponse `json:"payment"`
}

type PaymentResponse struct {
	ID                    string          `json:"id"`
	TransactionRef        string          `json:"transactionRef"`
	OrderID               string          `json:"orderId"`
	UserID                string          `json:"userId"`
	AmountUSD             decimal.Decimal `json:"amountUsd"`
	PaymentType           string          `json:"paymentType"`
	Provider              string          `json:"provider"`
	Status                string          `json:"status"`
	Currency              string          `json:"currency"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	ReceiptURL            string          `json:"receiptUrl,omitempty"`
	EscrowStatus          string          `json:"escrowStatus"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	CompletedAt           *time.Time      `json:"completedAt,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// mapPaymentToResponse omits provider metadata unless the caller administers
// payments; it can carry raw provider payloads.
func mapPaymentToResponse(p *domain.Payment, withMetadata bool) *PaymentResponse {
	resp := &PaymentResponse{
		ID:                    p.ID,
		TransactionRef:        p.TransactionRef,
		OrderID:               p.OrderID,
		UserID:                p.UserID,
		AmountUSD:             p.AmountUSD,
		PaymentType:           string(p.Type),
		Provider:              p.Provider,
		Status:                string(p.Status),
		Currency:              p.Currency,
		ProviderTransactionID: p.ProviderTransactionID,
		ReceiptURL:            p.ReceiptURL,
		EscrowStatus:          string(p.EscrowStatus),
		CompletedAt:           p.CompletedAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
	if withMetadata {
		resp.Metadata = p.Metadata
	}
	return resp
}

func mapPaymentsToResponse(payments []*domain.Payment, withMetadata bool) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, mapPaymentToResponse(p, withMetadata))
	}
	return out
}
