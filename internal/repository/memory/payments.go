package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/payments_repo"
)

type PaymentRepository struct {
	store *Store
}

func (s *Store) Payments() payments_repo.PaymentRepository {
	return &PaymentRepository{store: s}
}

func (r *PaymentRepository) CreateTx(ctx context.Context, _ domain.Querier, payment *domain.Payment) error {
	return r.store.write(ctx, func(d *state) error {
		if _, ok := d.refs[payment.TransactionRef]; ok {
			return fmt.Errorf("payment with reference %s already exists", payment.TransactionRef)
		}
		d.payments[payment.ID] = clonePayment(payment)
		d.refs[payment.TransactionRef] = payment.ID
		return nil
	})
}

func (r *PaymentRepository) GetByIDTx(ctx context.Context, _ domain.Querier, id string) (*domain.Payment, error) {
	var found *domain.Payment
	r.store.read(func(d *state) {
		if p, ok := d.payments[id]; ok {
			found = clonePayment(p)
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("payment", id)
	}
	return found, nil
}

func (r *PaymentRepository) GetByRefTx(ctx context.Context, _ domain.Querier, ref string) (*domain.Payment, error) {
	var found *domain.Payment
	r.store.read(func(d *state) {
		if id, ok := d.refs[ref]; ok {
			found = clonePayment(d.payments[id])
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("payment", ref)
	}
	return found, nil
}

func (r *PaymentRepository) GetByRefForUpdateTx(ctx context.Context, q domain.Querier, ref string) (*domain.Payment, error) {
	return r.GetByRefTx(ctx, q, ref)
}

func (r *PaymentRepository) collect(match func(p *domain.Payment) bool, newestFirst bool) []*domain.Payment {
	var out []*domain.Payment
	r.store.read(func(d *state) {
		for _, p := range d.payments {
			if match(p) {
				out = append(out, clonePayment(p))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *PaymentRepository) ListTx(ctx context.Context, _ domain.Querier, limit, offset int) ([]*domain.Payment, error) {
	all := r.collect(func(*domain.Payment) bool { return true }, true)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *PaymentRepository) ListByUserTx(ctx context.Context, _ domain.Querier, userID string) ([]*domain.Payment, error) {
	return r.collect(func(p *domain.Payment) bool { return p.UserID == userID }, true), nil
}

func (r *PaymentRepository) ListByOrderTx(ctx context.Context, _ domain.Querier, orderID string) ([]*domain.Payment, error) {
	return r.collect(func(p *domain.Payment) bool { return p.OrderID == orderID }, false), nil
}

func (r *PaymentRepository) pending(d *state, ref string) (*domain.Payment, error) {
	id, ok := d.refs[ref]
	if !ok {
		return nil, payments_repo.ErrNotPending
	}
	p := d.payments[id]
	if p.Status != domain.PaymentStatusPending {
		return nil, payments_repo.ErrNotPending
	}
	return p, nil
}

func (r *PaymentRepository) MarkCompletedTx(ctx context.Context, _ domain.Querier, ref string, s domain.Settlement) error {
	return r.store.write(ctx, func(d *state) error {
		p, err := r.pending(d, ref)
		if err != nil {
			return err
		}
		completedAt := s.CompletedAt
		p.Status = domain.PaymentStatusCompleted
		p.ProviderTransactionID = s.ProviderTransactionID
		p.ReceiptURL = s.ReceiptURL
		p.CompletedAt = &completedAt
		p.EscrowStatus = domain.EscrowStatusHeld
		p.UpdatedAt = completedAt
		return nil
	})
}

func (r *PaymentRepository) MarkFailedTx(ctx context.Context, _ domain.Querier, ref string, metadata json.RawMessage, at time.Time) error {
	return r.store.write(ctx, func(d *state) error {
		p, err := r.pending(d, ref)
		if err != nil {
			return err
		}
		merged, err := mergeJSON(p.Metadata, metadata)
		if err != nil {
			return err
		}
		p.Status = domain.PaymentStatusFailed
		p.Metadata = merged
		p.UpdatedAt = at
		return nil
	})
}

// mergeJSON overlays the keys of extra onto base, like jsonb concatenation.
func mergeJSON(base, extra json.RawMessage) (json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &out); err != nil {
			return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
		}
	}
	if len(extra) > 0 {
		add := map[string]json.RawMessage{}
		if err := json.Unmarshal(extra, &add); err != nil {
			return nil, fmt.Errorf("failed to decode metadata patch: %w", err)
		}
		for k, v := range add {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
