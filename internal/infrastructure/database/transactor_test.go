package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
)

func TestWithinTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr := NewTransactor(db, zap.NewNop())
	err = tr.WithinTx(context.Background(), func(ctx context.Context, q domain.Querier) error {
		_, err := q.ExecContext(ctx, "UPDATE orders SET priority = $1", "HIGH")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackAndReturnsOriginalError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	tr := NewTransactor(db, zap.NewNop())
	err = tr.WithinTx(context.Background(), func(context.Context, domain.Querier) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollbackFailureKeepsBothErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	connLost := errors.New("connection lost")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(connLost)

	tr := NewTransactor(db, zap.NewNop())
	err = tr.WithinTx(context.Background(), func(context.Context, domain.Querier) error {
		return domain.NewTransitionError("o1", domain.OrderStatusPendingQuote, domain.OrderStatusShipped)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	assert.ErrorIs(t, err, connLost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tr := NewTransactor(db, zap.NewNop())
	assert.Panics(t, func() {
		_ = tr.WithinTx(context.Background(), func(context.Context, domain.Querier) error {
			panic("unexpected")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}
