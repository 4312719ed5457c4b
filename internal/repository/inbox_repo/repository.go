package inbox_repo

import (
	"context"

	"vehicle-orders/internal/domain"
)

type InboxRepository interface {
	// CreateMessageTx claims an event id for processing. It returns
	// domain.ErrMessageAlreadyProcessed or domain.ErrMessageAlreadyPending when
	// the id was seen before; an earlier FAILED attempt is reclaimed.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error
}
