package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateOrder   = "order"
	AggregatePayment = "payment"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCompleted   = "payment.completed"
	EventPaymentFailed      = "payment.failed"
)

type OrderCreatedEvent struct {
	OrderID       string    `json:"order_id"`
	RequestNumber string    `json:"request_number"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentSettledEvent struct {
	PaymentID      string          `json:"payment_id"`
	TransactionRef string          `json:"transaction_ref"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	PaymentType    string          `json:"payment_type"`
	Provider       string          `json:"provider"`
	Status         string          `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// WebhookReceivedEvent is published by the webhook intake handler and
// consumed by the settlement worker.
type WebhookReceivedEvent struct {
	EventID    string    `json:"event_id"`
	Provider   string    `json:"provider"`
	Type       string    `json:"type"`
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"received_at"`
}
