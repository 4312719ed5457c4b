package domain

import "fmt"

type OrderStatus string

const (
	OrderStatusPendingQuote       OrderStatus = "PENDING_QUOTE"
	OrderStatusQuoteSent          OrderStatus = "QUOTE_SENT"
	OrderStatusQuoteAccepted      OrderStatus = "QUOTE_ACCEPTED"
	OrderStatusQuoteRejected      OrderStatus = "QUOTE_REJECTED"
	OrderStatusQuoteExpired       OrderStatus = "QUOTE_EXPIRED"
	OrderStatusDepositPending     OrderStatus = "DEPOSIT_PENDING"
	OrderStatusDepositPaid        OrderStatus = "DEPOSIT_PAID"
	OrderStatusHalfDepositPaid    OrderStatus = "HALF_DEPOSIT_PAID"
	OrderStatusAwaitingBalance    OrderStatus = "AWAITING_BALANCE"
	OrderStatusBalancePaid        OrderStatus = "BALANCE_PAID"
	OrderStatusInspectionPending  OrderStatus = "INSPECTION_PENDING"
	OrderStatusInspectionComplete OrderStatus = "INSPECTION_COMPLETE"
	OrderStatusInspectionFailed   OrderStatus = "INSPECTION_FAILED"
	OrderStatusAwaitingApproval   OrderStatus = "AWAITING_APPROVAL"
	OrderStatusApproved           OrderStatus = "APPROVED"
	OrderStatusRejected           OrderStatus = "REJECTED"
	OrderStatusPurchaseInProgress OrderStatus = "PURCHASE_IN_PROGRESS"
	OrderStatusPurchased          OrderStatus = "PURCHASED"
	OrderStatusExportPending      OrderStatus = "EXPORT_PENDING"
	OrderStatusShipped            OrderStatus = "SHIPPED"
	OrderStatusInTransit          OrderStatus = "IN_TRANSIT"
	OrderStatusArrivedPort        OrderStatus = "ARRIVED_PORT"
	OrderStatusCustomsClearance   OrderStatus = "CUSTOMS_CLEARANCE"
	OrderStatusCustomsHold        OrderStatus = "CUSTOMS_HOLD"
	OrderStatusCleared            OrderStatus = "CLEARED"
	OrderStatusDeliveryScheduled  OrderStatus = "DELIVERY_SCHEDULED"
	OrderStatusOutForDelivery     OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
	OrderStatusRefunded           OrderStatus = "REFUNDED"
	OrderStatusPartiallyRefunded  OrderStatus = "PARTIALLY_REFUNDED"
)

type statusRule struct {
	// terminal states accept no further transition except an explicit CANCELLED edge.
	terminal bool
	// locked orders can no longer be edited by their owner.
	locked   bool
	next     []OrderStatus
}

// statusTable is the only place order status edges are declared. Cancellability
// is derived from the presence of a CANCELLED edge and lock flags are checked
// against it in init, so the three views cannot disagree.
var statusTable = map[OrderStatus]statusRule{
	OrderStatusPendingQuote:       {next: []OrderStatus{OrderStatusQuoteSent, OrderStatusCancelled}},
	OrderStatusQuoteSent:          {next: []OrderStatus{OrderStatusQuoteAccepted, OrderStatusQuoteRejected, OrderStatusQuoteExpired, OrderStatusCancelled}},
	OrderStatusQuoteAccepted:      {next: []OrderStatus{OrderStatusDepositPending, OrderStatusCancelled}},
	OrderStatusQuoteRejected:      {terminal: true},
	OrderStatusQuoteExpired:       {terminal: true},
	OrderStatusDepositPending:     {next: []OrderStatus{OrderStatusDepositPaid, OrderStatusHalfDepositPaid, OrderStatusBalancePaid, OrderStatusCancelled}},
	OrderStatusHalfDepositPaid:    {next: []OrderStatus{OrderStatusDepositPaid, OrderStatusCancelled}},
	OrderStatusDepositPaid:        {next: []OrderStatus{OrderStatusInspectionPending, OrderStatusAwaitingBalance, OrderStatusCancelled}},
	OrderStatusInspectionPending:  {next: []OrderStatus{OrderStatusInspectionComplete, OrderStatusInspectionFailed, OrderStatusCancelled}},
	OrderStatusInspectionComplete: {next: []OrderStatus{OrderStatusAwaitingApproval, OrderStatusCancelled}},
	OrderStatusInspectionFailed:   {terminal: true, next: []OrderStatus{OrderStatusCancelled}},
	OrderStatusAwaitingApproval:   {next: []OrderStatus{OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled}},
	OrderStatusApproved:           {next: []OrderStatus{OrderStatusAwaitingBalance, OrderStatusPurchaseInProgress}},
	OrderStatusRejected:           {terminal: true, next: []OrderStatus{OrderStatusCancelled}},
	OrderStatusAwaitingBalance:    {next: []OrderStatus{OrderStatusBalancePaid}},
	OrderStatusBalancePaid:        {next: []OrderStatus{OrderStatusPurchaseInProgress}},
	OrderStatusPurchaseInProgress: {next: []OrderStatus{OrderStatusPurchased}},
	OrderStatusPurchased:          {locked: true, next: []OrderStatus{OrderStatusExportPending}},
	OrderStatusExportPending:      {next: []OrderStatus{OrderStatusShipped}},
	OrderStatusShipped:            {locked: true, next: []OrderStatus{OrderStatusInTransit}},
	OrderStatusInTransit:          {next: []OrderStatus{OrderStatusArrivedPort}},
	OrderStatusArrivedPort:        {next: []OrderStatus{OrderStatusCustomsClearance}},
	OrderStatusCustomsClearance:   {next: []OrderStatus{OrderStatusCleared, OrderStatusCustomsHold}},
	OrderStatusCustomsHold:        {next: []OrderStatus{OrderStatusCustomsClearance, OrderStatusCleared}},
	OrderStatusCleared:            {next: []OrderStatus{OrderStatusDeliveryScheduled}},
	OrderStatusDeliveryScheduled:  {next: []OrderStatus{OrderStatusOutForDelivery}},
	OrderStatusOutForDelivery:     {next: []OrderStatus{OrderStatusDelivered}},
	OrderStatusDelivered:          {terminal: true, locked: true},
	OrderStatusCancelled:          {terminal: true, locked: true, next: []OrderStatus{OrderStatusRefunded, OrderStatusPartiallyRefunded}},
	OrderStatusRefunded:           {terminal: true, locked: true},
	OrderStatusPartiallyRefunded:  {terminal: true},
}

// statusOrder keeps listings and error messages stable.
var statusOrder = []OrderStatus{
	OrderStatusPendingQuote, OrderStatusQuoteSent, OrderStatusQuoteAccepted, OrderStatusQuoteRejected,
	OrderStatusQuoteExpired, OrderStatusDepositPending, OrderStatusDepositPaid, OrderStatusHalfDepositPaid,
	OrderStatusAwaitingBalance, OrderStatusBalancePaid, OrderStatusInspectionPending, OrderStatusInspectionComplete,
	OrderStatusInspectionFailed, OrderStatusAwaitingApproval, OrderStatusApproved, OrderStatusRejected,
	OrderStatusPurchaseInProgress, OrderStatusPurchased, OrderStatusExportPending, OrderStatusShipped,
	OrderStatusInTransit, OrderStatusArrivedPort, OrderStatusCustomsClearance, OrderStatusCustomsHold,
	OrderStatusCleared, OrderStatusDeliveryScheduled, OrderStatusOutForDelivery, OrderStatusDelivered,
	OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded,
}

func init() {
	if len(statusOrder) != len(statusTable) {
		panic("order status table and ordering are out of sync")
	}
	for status, rule := range statusTable {
		for _, to := range rule.next {
			if _, ok := statusTable[to]; !ok {
				panic(fmt.Sprintf("order status %s has edge to unknown status %s", status, to))
			}
		}
		if rule.locked && status.IsCancellable() {
			panic(fmt.Sprintf("locked order status %s must not be cancellable", status))
		}
		if rule.terminal && len(rule.next) > 0 && status != OrderStatusCancelled {
			if len(rule.next) != 1 || rule.next[0] != OrderStatusCancelled {
				panic(fmt.Sprintf("terminal order status %s may only lead to %s", status, OrderStatusCancelled))
			}
		}
	}
}

// AllOrderStatuses returns every known status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(statusOrder))
	copy(out, statusOrder)
	return out
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if !status.IsValid() {
		return "", NewValidationError("invalid order status", FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", value)})
	}
	return status, nil
}

func (s OrderStatus) IsValid() bool {
	_, ok := statusTable[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	rule, ok := statusTable[s]
	if !ok {
		return false
	}
	for _, next := range rule.next {
		if next == target {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func (s OrderStatus) NextStatuses() []OrderStatus {
	rule := statusTable[s]
	out := make([]OrderStatus, len(rule.next))
	copy(out, rule.next)
	return out
}

func (s OrderStatus) IsTerminal() bool {
	return statusTable[s].terminal
}

func (s OrderStatus) IsCancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

func (s OrderStatus) IsLocked() bool {
	return statusTable[s].locked
}
