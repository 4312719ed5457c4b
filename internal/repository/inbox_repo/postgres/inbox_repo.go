package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/inbox_repo"
)

type InboxRepository struct{}

func NewInboxRepository() inbox_repo.InboxRepository {
	return &InboxRepository{}
}

func (r *InboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, provider, reference, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var insertedID string
	err := querier.QueryRowContext(ctx, query,
		msg.ID,
		msg.Provider,
		msg.Reference,
		msg.Payload,
		msg.Status,
		msg.ReceivedAt,
	).Scan(&insertedID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}

	var existing domain.InboxMessageStatus
	if err := querier.QueryRowContext(ctx, `SELECT status FROM inbox_messages WHERE id = $1 FOR UPDATE`, msg.ID).Scan(&existing); err != nil {
		return fmt.Errorf("failed to retrieve existing inbox message after conflict: %w", err)
	}
	switch existing {
	case domain.InboxStatusProcessed:
		return domain.ErrMessageAlreadyProcessed
	case domain.InboxStatusFailed:
		return r.UpdateStatusTx(ctx, querier, msg.ID, domain.InboxStatusProcessing)
	default:
		return domain.ErrMessageAlreadyPending
	}
}

func (r *InboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = CASE WHEN $1 = 'PROCESSED' THEN $2::timestamptz ELSE NULL END
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}
