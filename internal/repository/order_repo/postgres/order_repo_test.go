package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/order_repo"
)

var orderRowColumns = []string{
	"id", "request_number", "user_id", "vehicle_id", "vehicle_snapshot", "payment_breakdown", "shipping_method",
	"destination_name", "destination_phone", "destination_street", "destination_city", "destination_state",
	"destination_country", "destination_postcode", "customer_notes", "tags", "priority", "status", "status_changed_at",
	"status_changed_by", "cancellation_reason", "cancelled_by", "cancelled_at", "refund_requested", "refund_reason",
	"refund_requested_at", "deleted_at", "created_at", "updated_at",
}

func TestGetByIDScansOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(orderRowColumns).AddRow(
		"o1", "AFZ-26-10-000001", "u1", "v1", []byte(`{"id":"v1"}`), []byte(`{"chargeTotalUsd":"23300"}`), "RORO",
		"Ada", "+234", "1 Marina", "Lagos", "Lagos", "NG", "100001", "", "{vip,rush}", "HIGH", "QUOTE_SENT", now,
		"admin-1", nil, nil, nil, false, nil,
		nil, nil, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("o1").
		WillReturnRows(rows)

	o, err := NewOrderRepository().GetByIDTx(context.Background(), db, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusQuoteSent, o.Status)
	assert.Equal(t, domain.PriorityHigh, o.Priority)
	assert.Equal(t, []string{"vip", "rush"}, o.Tags)
	assert.Equal(t, "Lagos", o.Destination.City)
	assert.Equal(t, "admin-1", o.StatusChangedBy)
	assert.Nil(t, o.CancelledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDMissingIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	_, err = NewOrderRepository().GetByIDTx(context.Background(), db, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatusIsConditionalOnObservedStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewOrderRepository()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
		WithArgs(domain.OrderStatusDepositPaid, now, "system", "o1", domain.OrderStatusQuoteAccepted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatusTx(context.Background(), db, "o1",
		domain.OrderStatusQuoteAccepted, domain.OrderStatusDepositPaid, "system", now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatusTx(context.Background(), db, "o1",
		domain.OrderStatusQuoteAccepted, domain.OrderStatusDepositPaid, "system", now)
	assert.ErrorIs(t, err, order_repo.ErrStatusChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesFiltersAndDefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE deleted_at IS NULL AND status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs(domain.OrderStatusShipped, 50, 0).
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	orders, err := NewOrderRepository().ListTx(context.Background(), db, domain.OrderFilter{Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	assert.Empty(t, orders)
	require.NoError(t, mock.ExpectationsWereMet())
}
