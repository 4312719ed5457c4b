package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTableClosure(t *testing.T) {
	for _, from := range AllOrderStatuses() {
		allowed := map[OrderStatus]bool{}
		for _, to := range from.NextStatuses() {
			allowed[to] = true
		}
		for _, to := range AllOrderStatuses() {
			assert.Equal(t, allowed[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.False(t, OrderStatusPendingQuote.CanTransitionTo(OrderStatusDelivered))
	assert.True(t, OrderStatusPendingQuote.CanTransitionTo(OrderStatusQuoteSent))
	assert.False(t, OrderStatus("BOGUS").CanTransitionTo(OrderStatusCancelled))
}

func TestTerminalStatuses(t *testing.T) {
	tests := []struct {
		status OrderStatus
		next   []OrderStatus
	}{
		{OrderStatusQuoteRejected, nil},
		{OrderStatusQuoteExpired, nil},
		{OrderStatusDelivered, nil},
		{OrderStatusRefunded, nil},
		{OrderStatusPartiallyRefunded, nil},
		{OrderStatusInspectionFailed, []OrderStatus{OrderStatusCancelled}},
		{OrderStatusRejected, []OrderStatus{OrderStatusCancelled}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.IsTerminal())
			assert.ElementsMatch(t, tt.next, tt.status.NextStatuses())
		})
	}
}

func TestCancellableAndLockedAreDisjoint(t *testing.T) {
	for _, s := range AllOrderStatuses() {
		if s.IsLocked() {
			assert.False(t, s.IsCancellable(), s)
		}
	}

	for _, s := range []OrderStatus{OrderStatusPendingQuote, OrderStatusDepositPending, OrderStatusAwaitingApproval} {
		assert.True(t, s.IsCancellable(), s)
	}
	for _, s := range []OrderStatus{OrderStatusShipped, OrderStatusPurchased, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		assert.False(t, s.IsCancellable(), s)
		assert.True(t, s.IsLocked(), s)
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("IN_TRANSIT")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusInTransit, s)

	_, err = ParseOrderStatus("LOST")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, AllOrderStatuses(), 31)
}

func TestPaymentTypeTargets(t *testing.T) {
	assert.Equal(t, OrderStatusDepositPaid, PaymentTypeDeposit.SettledOrderStatus())
	assert.Equal(t, OrderStatusBalancePaid, PaymentTypeFullPayment.SettledOrderStatus())
	assert.Equal(t, OrderStatusBalancePaid, PaymentTypeBalance.SettledOrderStatus())
	assert.Equal(t, OrderStatusRefunded, PaymentTypeRefund.SettledOrderStatus())
	assert.True(t, PaymentTypePartialRefund.IsRefund())

	_, err := ParsePaymentType("TIP")
	assert.ErrorIs(t, err, ErrValidation)
}
