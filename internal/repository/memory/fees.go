package memory

import (
	"context"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/fees_repo"
)

type FeeRepository struct {
	store *Store
}

func (s *Store) Fees() fees_repo.FeeRepository {
	return &FeeRepository{store: s}
}

func (r *FeeRepository) GetTx(ctx context.Context, _ domain.Querier) (*domain.FeeSettings, error) {
	var found *domain.FeeSettings
	r.store.read(func(d *state) {
		if d.fees != nil {
			f := *d.fees
			found = &f
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("fee settings", "current")
	}
	return found, nil
}

func (r *FeeRepository) InsertIfAbsentTx(ctx context.Context, _ domain.Querier, settings *domain.FeeSettings) error {
	return r.store.write(ctx, func(d *state) error {
		if d.fees == nil {
			f := *settings
			d.fees = &f
		}
		return nil
	})
}

func (r *FeeRepository) UpdateTx(ctx context.Context, _ domain.Querier, settings *domain.FeeSettings) error {
	return r.store.write(ctx, func(d *state) error {
		if d.fees == nil {
			return domain.NewNotFoundError("fee settings", "current")
		}
		f := *settings
		d.fees = &f
		return nil
	})
}
