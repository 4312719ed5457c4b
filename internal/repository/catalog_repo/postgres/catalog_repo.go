package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vehicle-orders/internal/domain"
)

// CatalogReader reads the vehicles and addresses tables maintained by the
// catalog and address services.
type CatalogReader struct {
	db domain.Querier
}

func NewCatalogReader(db domain.Querier) *CatalogReader {
	return &CatalogReader{db: db}
}

func (r *CatalogReader) GetVehicle(ctx context.Context, id string) (*domain.VehicleSnapshot, error) {
	query := `SELECT id, make, model, year, vin, price_usd, attributes FROM vehicles WHERE id = $1`
	v := &domain.VehicleSnapshot{}
	var vin sql.NullString
	var attributes []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.Make, &v.Model, &v.Year, &vin, &v.PriceUSD, &attributes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("vehicle", id)
		}
		return nil, fmt.Errorf("failed to get vehicle %s: %w", id, err)
	}
	v.VIN = vin.String
	v.Attributes = attributes
	return v, nil
}

func (r *CatalogReader) DefaultAddress(ctx context.Context, userID string) (*domain.Destination, error) {
	query := `
		SELECT full_name, phone, street, city, state, country, postcode
		FROM addresses
		WHERE user_id = $1 AND is_default
		LIMIT 1
	`
	a := &domain.Destination{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&a.FullName, &a.Phone, &a.Street, &a.City, &a.State, &a.Country, &a.Postcode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("default address", userID)
		}
		return nil, fmt.Errorf("failed to get default address for user %s: %w", userID, err)
	}
	return a, nil
}
