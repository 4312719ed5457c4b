package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Destination is the shipping address copied onto the order at creation.
type Destination struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
}

// VehicleSnapshot is the catalog view of a vehicle at order creation time.
type VehicleSnapshot struct {
	ID         string          `json:"id"`
	Make       string          `json:"make"`
	Model      string          `json:"model"`
	Year       int             `json:"year"`
	VIN        string          `json:"vin,omitempty"`
	PriceUSD   decimal.Decimal `json:"priceUsd"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

type Order struct {
	ID               string
	RequestNumber    string
	UserID           string
	VehicleID        string
	VehicleSnapshot  json.RawMessage
	PaymentBreakdown json.RawMessage
	ShippingMethod   ShippingMethod
	Destination      Destination
	CustomerNotes    string
	Tags             []string
	Priority         Priority

	Status          OrderStatus
	StatusChangedAt time.Time
	StatusChangedBy string

	CancellationReason string
	CancelledBy        string
	CancelledAt        *time.Time

	RefundRequested   bool
	RefundReason      string
	RefundRequestedAt *time.Time

	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Breakdown decodes the payment breakdown captured at creation.
func (o *Order) Breakdown() (*PriceBreakdown, error) {
	var b PriceBreakdown
	if err := json.Unmarshal(o.PaymentBreakdown, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type StatusChange struct {
	ID        string
	OrderID   string
	From      OrderStatus
	To        OrderStatus
	ActorID   string
	Reason    string
	CreatedAt time.Time
}

type OrderNote struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderFilter struct {
	Status OrderStatus
	UserID string
	Limit  int
	Offset int
}

// AdminActivity is a best-effort audit record of an administrative action.
type AdminActivity struct {
	ID        string
	ActorID   string
	Action    string
	SubjectID string
	Details   json.RawMessage
	CreatedAt time.Time
}
