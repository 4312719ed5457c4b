package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type PaymentType string

const (
	PaymentTypeDeposit       PaymentType = "DEPOSIT"
	PaymentTypeFullPayment   PaymentType = "FULL_PAYMENT"
	PaymentTypeBalance       PaymentType = "BALANCE"
	PaymentTypeRefund        PaymentType = "REFUND"
	PaymentTypePartialRefund PaymentType = "PARTIAL_REFUND"
)

// paidStatusByType maps a settled payment to the order status it advances to.
var paidStatusByType = map[PaymentType]OrderStatus{
	PaymentTypeDeposit:       OrderStatusDepositPaid,
	PaymentTypeFullPayment:   OrderStatusBalancePaid,
	PaymentTypeBalance:       OrderStatusBalancePaid,
	PaymentTypeRefund:        OrderStatusRefunded,
	PaymentTypePartialRefund: OrderStatusPartiallyRefunded,
}

func ParsePaymentType(value string) (PaymentType, error) {
	t := PaymentType(value)
	if _, ok := paidStatusByType[t]; !ok {
		return "", NewValidationError("invalid payment type", FieldError{Field: "paymentType", Message: "must be one of DEPOSIT, FULL_PAYMENT, BALANCE, REFUND, PARTIAL_REFUND"})
	}
	return t, nil
}

// SettledOrderStatus is the order status a completed payment of this type moves the order to.
func (t PaymentType) SettledOrderStatus() OrderStatus {
	return paidStatusByType[t]
}

func (t PaymentType) IsRefund() bool {
	return t == PaymentTypeRefund || t == PaymentTypePartialRefund
}

type EscrowStatus string

const (
	EscrowStatusNone EscrowStatus = "NONE"
	EscrowStatusHeld EscrowStatus = "HELD"
)

type Payment struct {
	ID                    string
	TransactionRef        string
	ProviderReference     string
	OrderID               string
	UserID                string
	AmountUSD             decimal.Decimal
	Type                  PaymentType
	Provider              string
	Status                PaymentStatus
	Currency              string
	ProviderTransactionID string
	ReceiptURL            string
	Metadata              json.RawMessage
	EscrowStatus          EscrowStatus
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Settlement carries the provider confirmation written when a payment completes.
type Settlement struct {
	ProviderTransactionID string
	ReceiptURL            string
	CompletedAt           time.Time
}
