package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/payments_repo"
)

const paymentColumns = `id, transaction_ref, provider_reference, order_id, user_id, amount_usd, payment_type, provider,
	status, currency, provider_transaction_id, receipt_url, metadata, escrow_status, completed_at, created_at, updated_at`

type paymentRepository struct{}

func NewPaymentRepository() payments_repo.PaymentRepository {
	return &paymentRepository{}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var (
		providerTxID, receiptURL sql.NullString
		completedAt              sql.NullTime
		metadata                 []byte
	)
	err := row.Scan(
		&p.ID, &p.TransactionRef, &p.ProviderReference, &p.OrderID, &p.UserID, &p.AmountUSD, &p.Type, &p.Provider,
		&p.Status, &p.Currency, &providerTxID, &receiptURL, &metadata, &p.EscrowStatus, &completedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ProviderTransactionID = providerTxID.String
	p.ReceiptURL = receiptURL.String
	p.Metadata = metadata
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return p, nil
}

func (r *paymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, transaction_ref, provider_reference, order_id, user_id, amount_usd, payment_type,
			provider, status, currency, metadata, escrow_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	metadata := payment.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.TransactionRef,
		payment.ProviderReference,
		payment.OrderID,
		payment.UserID,
		payment.AmountUSD,
		payment.Type,
		payment.Provider,
		payment.Status,
		payment.Currency,
		[]byte(metadata),
		payment.EscrowStatus,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("payment with reference %s already exists: %w", payment.TransactionRef, err)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) getOne(ctx context.Context, querier domain.Querier, key, where string, arg any) (*domain.Payment, error) {
	payment, err := scanPayment(querier.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment", key)
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", key, err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, id, `id = $1`, id)
}

func (r *paymentRepository) GetByRefTx(ctx context.Context, querier domain.Querier, ref string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, ref, `transaction_ref = $1`, ref)
}

func (r *paymentRepository) GetByRefForUpdateTx(ctx context.Context, querier domain.Querier, ref string) (*domain.Payment, error) {
	return r.getOne(ctx, querier, ref, `transaction_ref = $1 FOR UPDATE`, ref)
}

func (r *paymentRepository) list(ctx context.Context, querier domain.Querier, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) ListTx(ctx context.Context, querier domain.Querier, limit, offset int) ([]*domain.Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.list(ctx, querier, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *paymentRepository) ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]*domain.Payment, error) {
	return r.list(ctx, querier, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *paymentRepository) ListByOrderTx(ctx context.Context, querier domain.Querier, orderID string) ([]*domain.Payment, error) {
	return r.list(ctx, querier, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
}

// MarkCompletedTx only moves a PENDING payment; a second settlement of the
// same reference affects no rows and returns ErrNotPending.
func (r *paymentRepository) MarkCompletedTx(ctx context.Context, querier domain.Querier, ref string, s domain.Settlement) error {
	query := `
		UPDATE payments
		SET status = $1, provider_transaction_id = $2, receipt_url = $3, completed_at = $4, escrow_status = $5, updated_at = $4
		WHERE transaction_ref = $6 AND status = $7
	`
	res, err := querier.ExecContext(ctx, query,
		domain.PaymentStatusCompleted,
		sql.NullString{String: s.ProviderTransactionID, Valid: s.ProviderTransactionID != ""},
		sql.NullString{String: s.ReceiptURL, Valid: s.ReceiptURL != ""},
		s.CompletedAt,
		domain.EscrowStatusHeld,
		ref,
		domain.PaymentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s completed: %w", ref, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment completion: %w", err)
	}
	if rowsAffected == 0 {
		return payments_repo.ErrNotPending
	}
	return nil
}

func (r *paymentRepository) MarkFailedTx(ctx context.Context, querier domain.Querier, ref string, metadata json.RawMessage, at time.Time) error {
	query := `
		UPDATE payments
		SET status = $1, metadata = metadata || $2::jsonb, updated_at = $3
		WHERE transaction_ref = $4 AND status = $5
	`
	res, err := querier.ExecContext(ctx, query, domain.PaymentStatusFailed, []byte(metadata), at, ref, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s failed: %w", ref, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment failure: %w", err)
	}
	if rowsAffected == 0 {
		return payments_repo.ErrNotPending
	}
	return nil
}
