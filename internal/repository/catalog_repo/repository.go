package catalog_repo

import (
	"context"

	"vehicle-orders/internal/domain"
)

// VehicleCatalog supplies the immutable vehicle snapshot taken at order creation.
type VehicleCatalog interface {
	GetVehicle(ctx context.Context, id string) (*domain.VehicleSnapshot, error)
}

// AddressBook supplies the customer's validated default shipping address.
type AddressBook interface {
	DefaultAddress(ctx context.Context, userID string) (*domain.Destination, error)
}
