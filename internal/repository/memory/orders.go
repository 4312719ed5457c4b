package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/order_repo"
)

type OrderRepository struct {
	store *Store
}

func (s *Store) Orders() order_repo.OrderRepository {
	return &OrderRepository{store: s}
}

func (r *OrderRepository) CreateTx(ctx context.Context, _ domain.Querier, order *domain.Order) error {
	return r.store.write(ctx, func(d *state) error {
		if _, ok := d.orders[order.ID]; ok {
			return fmt.Errorf("order %s already exists", order.ID)
		}
		for _, o := range d.orders {
			if o.RequestNumber == order.RequestNumber {
				return fmt.Errorf("request number %s already exists", order.RequestNumber)
			}
		}
		d.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r *OrderRepository) NextRequestSequenceTx(ctx context.Context, _ domain.Querier) (int64, error) {
	var seq int64
	_ = r.store.write(ctx, func(d *state) error {
		d.seq++
		seq = d.seq
		return nil
	})
	return seq, nil
}

func (r *OrderRepository) find(match func(o *domain.Order) bool, key string) (*domain.Order, error) {
	var found *domain.Order
	r.store.read(func(d *state) {
		for _, o := range d.orders {
			if o.DeletedAt == nil && match(o) {
				found = cloneOrder(o)
				return
			}
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("order", key)
	}
	return found, nil
}

func (r *OrderRepository) GetByIDTx(ctx context.Context, _ domain.Querier, id string) (*domain.Order, error) {
	return r.find(func(o *domain.Order) bool { return o.ID == id }, id)
}

func (r *OrderRepository) GetByIDForUpdateTx(ctx context.Context, q domain.Querier, id string) (*domain.Order, error) {
	return r.GetByIDTx(ctx, q, id)
}

func (r *OrderRepository) GetByRequestNumberTx(ctx context.Context, _ domain.Querier, requestNumber string) (*domain.Order, error) {
	return r.find(func(o *domain.Order) bool { return o.RequestNumber == requestNumber }, requestNumber)
}

func (r *OrderRepository) collect(match func(o *domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	r.store.read(func(d *state) {
		for _, o := range d.orders {
			if o.DeletedAt == nil && match(o) {
				out = append(out, cloneOrder(o))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *OrderRepository) GetByIDsTx(ctx context.Context, _ domain.Querier, ids []string) ([]*domain.Order, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return r.collect(func(o *domain.Order) bool {
		_, ok := wanted[o.ID]
		return ok
	}), nil
}

func (r *OrderRepository) ListByUserTx(ctx context.Context, _ domain.Querier, userID string) ([]*domain.Order, error) {
	return r.collect(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (r *OrderRepository) ListTx(ctx context.Context, _ domain.Querier, filter domain.OrderFilter) ([]*domain.Order, error) {
	all := r.collect(func(o *domain.Order) bool {
		return (filter.Status == "" || o.Status == filter.Status) && (filter.UserID == "" || o.UserID == filter.UserID)
	})
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// mutate applies fn to a live order. It returns NotFound for missing or
// soft-deleted orders.
func (r *OrderRepository) mutate(ctx context.Context, id string, fn func(o *domain.Order) error) error {
	return r.store.write(ctx, func(d *state) error {
		o, ok := d.orders[id]
		if !ok || o.DeletedAt != nil {
			return domain.NewNotFoundError("order", id)
		}
		return fn(o)
	})
}

func (r *OrderRepository) UpdateStatusTx(ctx context.Context, _ domain.Querier, id string, from, to domain.OrderStatus, actorID string, at time.Time) error {
	err := r.mutate(ctx, id, func(o *domain.Order) error {
		if o.Status != from {
			return order_repo.ErrStatusChanged
		}
		o.Status = to
		o.StatusChangedAt = at
		o.StatusChangedBy = actorID
		o.UpdatedAt = at
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return order_repo.ErrStatusChanged
	}
	return err
}

func (r *OrderRepository) CancelTx(ctx context.Context, _ domain.Querier, id string, from domain.OrderStatus, reason, actorID string, at time.Time) error {
	err := r.mutate(ctx, id, func(o *domain.Order) error {
		if o.Status != from {
			return order_repo.ErrStatusChanged
		}
		o.Status = domain.OrderStatusCancelled
		o.StatusChangedAt = at
		o.StatusChangedBy = actorID
		o.CancellationReason = reason
		o.CancelledBy = actorID
		o.CancelledAt = &at
		o.UpdatedAt = at
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return order_repo.ErrStatusChanged
	}
	return err
}

func (r *OrderRepository) MarkRefundRequestedTx(ctx context.Context, _ domain.Querier, id, reason string, at time.Time) error {
	err := r.mutate(ctx, id, func(o *domain.Order) error {
		if o.Status != domain.OrderStatusCancelled || o.RefundRequested {
			return order_repo.ErrStatusChanged
		}
		o.RefundRequested = true
		o.RefundReason = reason
		o.RefundRequestedAt = &at
		o.UpdatedAt = at
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return order_repo.ErrStatusChanged
	}
	return err
}

func (r *OrderRepository) UpdateTagsTx(ctx context.Context, _ domain.Querier, id string, tags []string, at time.Time) error {
	return r.mutate(ctx, id, func(o *domain.Order) error {
		o.Tags = append([]string(nil), tags...)
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) UpdatePriorityTx(ctx context.Context, _ domain.Querier, id string, priority domain.Priority, at time.Time) error {
	return r.mutate(ctx, id, func(o *domain.Order) error {
		o.Priority = priority
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) UpdateDetailsTx(ctx context.Context, _ domain.Querier, id string, dest domain.Destination, notes string, at time.Time) error {
	return r.mutate(ctx, id, func(o *domain.Order) error {
		o.Destination = dest
		o.CustomerNotes = notes
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) SoftDeleteTx(ctx context.Context, _ domain.Querier, id string, at time.Time) error {
	return r.mutate(ctx, id, func(o *domain.Order) error {
		o.DeletedAt = &at
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) DeleteTx(ctx context.Context, _ domain.Querier, id string) error {
	return r.store.write(ctx, func(d *state) error {
		if _, ok := d.orders[id]; !ok {
			return domain.NewNotFoundError("order", id)
		}
		for _, p := range d.payments {
			if p.OrderID == id {
				return errOrderHasPayments(id)
			}
		}
		delete(d.orders, id)
		history := d.history[:0]
		for _, c := range d.history {
			if c.OrderID != id {
				history = append(history, c)
			}
		}
		d.history = history
		notes := d.notes[:0]
		for _, n := range d.notes {
			if n.OrderID != id {
				notes = append(notes, n)
			}
		}
		d.notes = notes
		return nil
	})
}

func (r *OrderRepository) AddStatusChangeTx(ctx context.Context, _ domain.Querier, change *domain.StatusChange) error {
	return r.store.write(ctx, func(d *state) error {
		d.history = append(d.history, *change)
		return nil
	})
}

func (r *OrderRepository) ListStatusHistoryTx(ctx context.Context, _ domain.Querier, orderID string) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	r.store.read(func(d *state) {
		for _, c := range d.history {
			if c.OrderID == orderID {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

func (r *OrderRepository) AddNoteTx(ctx context.Context, _ domain.Querier, note *domain.OrderNote) error {
	return r.store.write(ctx, func(d *state) error {
		d.notes = append(d.notes, *note)
		return nil
	})
}

func (r *OrderRepository) ListNotesTx(ctx context.Context, _ domain.Querier, orderID string) ([]domain.OrderNote, error) {
	var out []domain.OrderNote
	r.store.read(func(d *state) {
		for _, n := range d.notes {
			if n.OrderID == orderID {
				out = append(out, n)
			}
		}
	})
	return out, nil
}

func errOrderHasPayments(id string) error {
	return &domain.StateConflictError{Entity: "order", ID: id, Message: "order has payments and cannot be hard deleted"}
}
