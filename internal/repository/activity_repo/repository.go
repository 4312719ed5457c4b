package activity_repo

import (
	"context"

	"vehicle-orders/internal/domain"
)

type ActivityRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, activity *domain.AdminActivity) error
}
