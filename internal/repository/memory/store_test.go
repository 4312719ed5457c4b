package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/order_repo"
	"vehicle-orders/internal/repository/payments_repo"
)

func newOrder(id, user string, status domain.OrderStatus, created time.Time) *domain.Order {
	return &domain.Order{
		ID:              id,
		RequestNumber:   "AFZ-26-10-" + id,
		UserID:          user,
		Status:          status,
		Priority:        domain.PriorityNormal,
		StatusChangedAt: created,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestWithinTxRestoresStateOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	orders := s.Orders()
	now := time.Now()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return orders.CreateTx(ctx, q, newOrder("o1", "u1", domain.OrderStatusPendingQuote, now))
	}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		require.NoError(t, orders.UpdateStatusTx(ctx, q, "o1", domain.OrderStatusPendingQuote, domain.OrderStatusQuoteSent, "admin", now))
		require.NoError(t, orders.CreateTx(ctx, q, newOrder("o2", "u1", domain.OrderStatusPendingQuote, now)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	o, err := orders.GetByIDTx(ctx, nil, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingQuote, o.Status)

	_, err = orders.GetByIDTx(ctx, nil, "o2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRollbackKeepsWritesMadeOutsideTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	orders := s.Orders()
	activity := s.ActivityLog()
	now := time.Now()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		require.NoError(t, orders.CreateTx(ctx, q, newOrder("o1", "u1", domain.OrderStatusPendingQuote, now)))

		done := make(chan error)
		go func() {
			done <- activity.CreateTx(context.Background(), nil, &domain.AdminActivity{
				ID: "a1", ActorID: "admin", Action: "orders.add_note", SubjectID: "o0", CreatedAt: now,
			})
		}()
		require.NoError(t, <-done)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = orders.GetByIDTx(ctx, nil, "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	logged := s.Activity()
	require.Len(t, logged, 1)
	assert.Equal(t, "a1", logged[0].ID)
}

func TestConditionalStatusUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	orders := s.Orders()
	now := time.Now()
	require.NoError(t, orders.CreateTx(ctx, nil, newOrder("o1", "u1", domain.OrderStatusQuoteSent, now)))

	err := orders.UpdateStatusTx(ctx, nil, "o1", domain.OrderStatusPendingQuote, domain.OrderStatusQuoteSent, "admin", now)
	assert.ErrorIs(t, err, order_repo.ErrStatusChanged)

	require.NoError(t, orders.CancelTx(ctx, nil, "o1", domain.OrderStatusQuoteSent, "changed my mind", "u1", now))
	o, err := orders.GetByIDTx(ctx, nil, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, o.Status)
	assert.Equal(t, "changed my mind", o.CancellationReason)
	require.NotNil(t, o.CancelledAt)

	require.NoError(t, orders.MarkRefundRequestedTx(ctx, nil, "o1", "please", now))
	assert.ErrorIs(t, orders.MarkRefundRequestedTx(ctx, nil, "o1", "again", now), order_repo.ErrStatusChanged)
}

func TestListOrdersNewestFirstAndSoftDeleteHides(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	orders := s.Orders()
	base := time.Now()
	require.NoError(t, orders.CreateTx(ctx, nil, newOrder("a", "u1", domain.OrderStatusPendingQuote, base)))
	require.NoError(t, orders.CreateTx(ctx, nil, newOrder("b", "u1", domain.OrderStatusQuoteSent, base.Add(time.Minute))))
	require.NoError(t, orders.CreateTx(ctx, nil, newOrder("c", "u2", domain.OrderStatusPendingQuote, base.Add(2*time.Minute))))

	mine, err := orders.ListByUserTx(ctx, nil, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b", mine[0].ID)

	pending, err := orders.ListTx(ctx, nil, domain.OrderFilter{Status: domain.OrderStatusPendingQuote})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].ID)

	require.NoError(t, orders.SoftDeleteTx(ctx, nil, "c", base))
	_, err = orders.GetByIDTx(ctx, nil, "c")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, orders.DeleteTx(ctx, nil, "a"))
	assert.ErrorIs(t, orders.DeleteTx(ctx, nil, "a"), domain.ErrNotFound)
}

func TestPaymentSettlementWritesArePendingOnly(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	payments := s.Payments()
	now := time.Now()
	require.NoError(t, payments.CreateTx(ctx, nil, &domain.Payment{
		ID:             "p1",
		TransactionRef: "AFZ-REF1",
		OrderID:        "o1",
		UserID:         "u1",
		AmountUSD:      decimal.NewFromInt(100),
		Type:           domain.PaymentTypeDeposit,
		Status:         domain.PaymentStatusPending,
		Metadata:       json.RawMessage(`{"rate":"1500"}`),
		CreatedAt:      now,
	}))

	require.NoError(t, payments.MarkFailedTx(ctx, nil, "AFZ-REF1", json.RawMessage(`{"failureReason":"declined"}`), now))
	p, err := payments.GetByRefTx(ctx, nil, "AFZ-REF1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.JSONEq(t, `{"rate":"1500","failureReason":"declined"}`, string(p.Metadata))

	err = payments.MarkCompletedTx(ctx, nil, "AFZ-REF1", domain.Settlement{ProviderTransactionID: "tx", CompletedAt: now})
	assert.ErrorIs(t, err, payments_repo.ErrNotPending)
}

func TestInboxDeduplication(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	inbox := s.Inbox()
	msg := &domain.InboxMessage{ID: "paystack:charge.success:1", Provider: "paystack", Reference: "AFZ-1", Status: domain.InboxStatusProcessing}

	require.NoError(t, inbox.CreateMessageTx(ctx, nil, msg))
	assert.ErrorIs(t, inbox.CreateMessageTx(ctx, nil, msg), domain.ErrMessageAlreadyPending)

	require.NoError(t, inbox.UpdateStatusTx(ctx, nil, msg.ID, domain.InboxStatusFailed))
	require.NoError(t, inbox.CreateMessageTx(ctx, nil, msg))

	require.NoError(t, inbox.UpdateStatusTx(ctx, nil, msg.ID, domain.InboxStatusProcessed))
	assert.ErrorIs(t, inbox.CreateMessageTx(ctx, nil, msg), domain.ErrMessageAlreadyProcessed)
}

func TestFeesInsertIfAbsentKeepsExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	fees := s.Fees()

	_, err := fees.GetTx(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	custom := domain.DefaultFeeSettings()
	custom.DepositPercent = decimal.NewFromInt(50)
	require.NoError(t, fees.InsertIfAbsentTx(ctx, nil, &custom))

	defaults := domain.DefaultFeeSettings()
	require.NoError(t, fees.InsertIfAbsentTx(ctx, nil, &defaults))

	got, err := fees.GetTx(ctx, nil)
	require.NoError(t, err)
	assert.True(t, got.DepositPercent.Equal(decimal.NewFromInt(50)))
}
