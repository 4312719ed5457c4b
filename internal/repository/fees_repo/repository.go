package fees_repo

import (
	"context"

	"vehicle-orders/internal/domain"
)

type FeeRepository interface {
	// GetTx returns a NotFound error when the schedule has never been written.
	GetTx(ctx context.Context, querier domain.Querier) (*domain.FeeSettings, error)
	// InsertIfAbsentTx writes the schedule only when no row exists yet.
	InsertIfAbsentTx(ctx context.Context, querier domain.Querier, settings *domain.FeeSettings) error
	UpdateTx(ctx context.Context, querier domain.Querier, settings *domain.FeeSettings) error
}
