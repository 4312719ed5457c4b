package memory

import (
	"context"
	"fmt"
	"time"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/activity_repo"
	"vehicle-orders/internal/repository/inbox_repo"
	"vehicle-orders/internal/repository/outbox_repo"
)

type OutboxRepository struct {
	store *Store
}

func (s *Store) Outbox() outbox_repo.OutboxRepository {
	return &OutboxRepository{store: s}
}

func (r *OutboxRepository) CreateMessageTx(ctx context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	return r.store.write(ctx, func(d *state) error {
		cp := *msg
		d.outbox = append(d.outbox, &cp)
		return nil
	})
}

func (r *OutboxRepository) GetPendingMessagesTx(ctx context.Context, _ domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	r.store.read(func(d *state) {
		for _, m := range d.outbox {
			if len(out) == limit {
				return
			}
			if m.Status == domain.OutboxStatusPending {
				out = append(out, *m)
			}
		}
	})
	return out, nil
}

func (r *OutboxRepository) MarkSentTx(ctx context.Context, _ domain.Querier, id string, at time.Time) error {
	return r.store.write(ctx, func(d *state) error {
		for _, m := range d.outbox {
			if m.ID == id {
				m.Status = domain.OutboxStatusSent
				m.SentAt = &at
				return nil
			}
		}
		return fmt.Errorf("outbox message %s not found", id)
	})
}

type InboxRepository struct {
	store *Store
}

func (s *Store) Inbox() inbox_repo.InboxRepository {
	return &InboxRepository{store: s}
}

func (r *InboxRepository) CreateMessageTx(ctx context.Context, _ domain.Querier, msg *domain.InboxMessage) error {
	return r.store.write(ctx, func(d *state) error {
		existing, ok := d.inbox[msg.ID]
		if !ok {
			cp := *msg
			d.inbox[msg.ID] = &cp
			return nil
		}
		switch existing.Status {
		case domain.InboxStatusProcessed:
			return domain.ErrMessageAlreadyProcessed
		case domain.InboxStatusFailed:
			existing.Status = domain.InboxStatusProcessing
			existing.ProcessedAt = nil
			return nil
		default:
			return domain.ErrMessageAlreadyPending
		}
	})
}

func (r *InboxRepository) UpdateStatusTx(ctx context.Context, _ domain.Querier, id string, status domain.InboxMessageStatus) error {
	return r.store.write(ctx, func(d *state) error {
		m, ok := d.inbox[id]
		if !ok {
			return fmt.Errorf("inbox message with id %s not found for status update", id)
		}
		m.Status = status
		m.ProcessedAt = nil
		if status == domain.InboxStatusProcessed {
			now := time.Now()
			m.ProcessedAt = &now
		}
		return nil
	})
}

type ActivityRepository struct {
	store *Store
}

func (s *Store) ActivityLog() activity_repo.ActivityRepository {
	return &ActivityRepository{store: s}
}

func (r *ActivityRepository) CreateTx(ctx context.Context, _ domain.Querier, activity *domain.AdminActivity) error {
	return r.store.write(ctx, func(d *state) error {
		d.activity = append(d.activity, *activity)
		return nil
	})
}
