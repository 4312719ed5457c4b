package memory

import (
	"context"

	"vehicle-orders/internal/domain"
)

func (s *Store) GetVehicle(_ context.Context, id string) (*domain.VehicleSnapshot, error) {
	var found *domain.VehicleSnapshot
	s.read(func(d *state) {
		if v, ok := d.vehicles[id]; ok {
			cp := *v
			found = &cp
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("vehicle", id)
	}
	return found, nil
}

func (s *Store) DefaultAddress(_ context.Context, userID string) (*domain.Destination, error) {
	var found *domain.Destination
	s.read(func(d *state) {
		if a, ok := d.addresses[userID]; ok {
			cp := *a
			found = &cp
		}
	})
	if found == nil {
		return nil, domain.NewNotFoundError("default address", userID)
	}
	return found, nil
}
