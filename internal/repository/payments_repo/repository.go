package payments_repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vehicle-orders/internal/domain"
)

// ErrNotPending is returned when a settlement write finds the payment already
// out of PENDING.
var ErrNotPending = errors.New("payment is not pending")

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	GetByRefTx(ctx context.Context, querier domain.Querier, ref string) (*domain.Payment, error)
	GetByRefForUpdateTx(ctx context.Context, querier domain.Querier, ref string) (*domain.Payment, error)
	ListTx(ctx context.Context, querier domain.Querier, limit, offset int) ([]*domain.Payment, error)
	ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]*domain.Payment, error)
	ListByOrderTx(ctx context.Context, querier domain.Querier, orderID string) ([]*domain.Payment, error)
	MarkCompletedTx(ctx context.Context, querier domain.Querier, ref string, settlement domain.Settlement) error
	MarkFailedTx(ctx context.Context, querier domain.Querier, ref string, metadata json.RawMessage, at time.Time) error
}
