package order_repo

import (
	"context"
	"errors"
	"time"

	"vehicle-orders/internal/domain"
)

// ErrStatusChanged is returned by conditional writes when the order is no
// longer in the status the caller observed.
var ErrStatusChanged = errors.New("order status changed concurrently")

type OrderRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
	NextRequestSequenceTx(ctx context.Context, querier domain.Querier) (int64, error)

	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	GetByRequestNumberTx(ctx context.Context, querier domain.Querier, requestNumber string) (*domain.Order, error)
	GetByIDsTx(ctx context.Context, querier domain.Querier, ids []string) ([]*domain.Order, error)
	ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]*domain.Order, error)
	ListTx(ctx context.Context, querier domain.Querier, filter domain.OrderFilter) ([]*domain.Order, error)

	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.OrderStatus, actorID string, at time.Time) error
	CancelTx(ctx context.Context, querier domain.Querier, id string, from domain.OrderStatus, reason, actorID string, at time.Time) error
	MarkRefundRequestedTx(ctx context.Context, querier domain.Querier, id, reason string, at time.Time) error
	UpdateTagsTx(ctx context.Context, querier domain.Querier, id string, tags []string, at time.Time) error
	UpdatePriorityTx(ctx context.Context, querier domain.Querier, id string, priority domain.Priority, at time.Time) error
	UpdateDetailsTx(ctx context.Context, querier domain.Querier, id string, destination domain.Destination, notes string, at time.Time) error
	SoftDeleteTx(ctx context.Context, querier domain.Querier, id string, at time.Time) error
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error

	AddStatusChangeTx(ctx context.Context, querier domain.Querier, change *domain.StatusChange) error
	ListStatusHistoryTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.StatusChange, error)
	AddNoteTx(ctx context.Context, querier domain.Querier, note *domain.OrderNote) error
	ListNotesTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.OrderNote, error)
}
