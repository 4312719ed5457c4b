package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/fees_repo"
)

type feeRepository struct{}

func NewFeeRepository() fees_repo.FeeRepository {
	return &feeRepository{}
}

func (r *feeRepository) GetTx(ctx context.Context, querier domain.Querier) (*domain.FeeSettings, error) {
	query := `
		SELECT import_duty_percent, vat_percent, ciss_percent, sourcing_fee_percent, deposit_percent,
			pre_purchase_inspection_usd, us_handling_fee_usd, shipping_cost_usd, clearing_fee_usd,
			port_charges_usd, local_delivery_usd, updated_by, updated_at
		FROM fee_settings
		WHERE id = 1
	`
	f := &domain.FeeSettings{}
	var updatedBy sql.NullString
	err := querier.QueryRowContext(ctx, query).Scan(
		&f.ImportDutyPercent, &f.VATPercent, &f.CISSPercent, &f.SourcingFeePercent, &f.DepositPercent,
		&f.PrePurchaseInspUSD, &f.USHandlingFeeUSD, &f.ShippingCostUSD, &f.ClearingFeeUSD,
		&f.PortChargesUSD, &f.LocalDeliveryUSD, &updatedBy, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("fee settings", "current")
		}
		return nil, fmt.Errorf("failed to get fee settings: %w", err)
	}
	f.UpdatedBy = updatedBy.String
	return f, nil
}

func (r *feeRepository) InsertIfAbsentTx(ctx context.Context, querier domain.Querier, f *domain.FeeSettings) error {
	query := `
		INSERT INTO fee_settings (id, import_duty_percent, vat_percent, ciss_percent, sourcing_fee_percent, deposit_percent,
			pre_purchase_inspection_usd, us_handling_fee_usd, shipping_cost_usd, clearing_fee_usd,
			port_charges_usd, local_delivery_usd, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := querier.ExecContext(ctx, query,
		f.ImportDutyPercent, f.VATPercent, f.CISSPercent, f.SourcingFeePercent, f.DepositPercent,
		f.PrePurchaseInspUSD, f.USHandlingFeeUSD, f.ShippingCostUSD, f.ClearingFeeUSD,
		f.PortChargesUSD, f.LocalDeliveryUSD, sql.NullString{String: f.UpdatedBy, Valid: f.UpdatedBy != ""}, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert default fee settings: %w", err)
	}
	return nil
}

func (r *feeRepository) UpdateTx(ctx context.Context, querier domain.Querier, f *domain.FeeSettings) error {
	query := `
		UPDATE fee_settings
		SET import_duty_percent = $1, vat_percent = $2, ciss_percent = $3, sourcing_fee_percent = $4,
			deposit_percent = $5, pre_purchase_inspection_usd = $6, us_handling_fee_usd = $7,
			shipping_cost_usd = $8, clearing_fee_usd = $9, port_charges_usd = $10, local_delivery_usd = $11,
			updated_by = $12, updated_at = $13
		WHERE id = 1
	`
	res, err := querier.ExecContext(ctx, query,
		f.ImportDutyPercent, f.VATPercent, f.CISSPercent, f.SourcingFeePercent, f.DepositPercent,
		f.PrePurchaseInspUSD, f.USHandlingFeeUSD, f.ShippingCostUSD, f.ClearingFeeUSD,
		f.PortChargesUSD, f.LocalDeliveryUSD, sql.NullString{String: f.UpdatedBy, Valid: f.UpdatedBy != ""}, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update fee settings: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for fee settings update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("fee settings", "current")
	}
	return nil
}
