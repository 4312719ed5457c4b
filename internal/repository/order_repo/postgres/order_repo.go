package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/order_repo"
)

const orderColumns = `id, request_number, user_id, vehicle_id, vehicle_snapshot, payment_breakdown, shipping_method,
	destination_name, destination_phone, destination_street, destination_city, destination_state,
	destination_country, destination_postcode, customer_notes, tags, priority, status, status_changed_at,
	status_changed_by, cancellation_reason, cancelled_by, cancelled_at, refund_requested, refund_reason,
	refund_requested_at, deleted_at, created_at, updated_at`

type pgOrderRepository struct{}

func NewOrderRepository() order_repo.OrderRepository {
	return &pgOrderRepository{}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var (
		vehicleID, statusChangedBy, cancellationReason, cancelledBy, refundReason sql.NullString
		cancelledAt, refundRequestedAt, deletedAt                                sql.NullTime
		tags                                                                     pq.StringArray
		snapshot, breakdown                                                      []byte
	)
	err := row.Scan(
		&o.ID, &o.RequestNumber, &o.UserID, &vehicleID, &snapshot, &breakdown, &o.ShippingMethod,
		&o.Destination.FullName, &o.Destination.Phone, &o.Destination.Street, &o.Destination.City, &o.Destination.State,
		&o.Destination.Country, &o.Destination.Postcode, &o.CustomerNotes, &tags, &o.Priority, &o.Status, &o.StatusChangedAt,
		&statusChangedBy, &cancellationReason, &cancelledBy, &cancelledAt, &o.RefundRequested, &refundReason,
		&refundRequestedAt, &deletedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.VehicleID = vehicleID.String
	o.VehicleSnapshot = snapshot
	o.PaymentBreakdown = breakdown
	o.StatusChangedBy = statusChangedBy.String
	o.CancellationReason = cancellationReason.String
	o.CancelledBy = cancelledBy.String
	o.RefundReason = refundReason.String
	o.Tags = []string(tags)
	if cancelledAt.Valid {
		o.CancelledAt = &cancelledAt.Time
	}
	if refundRequestedAt.Valid {
		o.RefundRequestedAt = &refundRequestedAt.Time
	}
	if deletedAt.Valid {
		o.DeletedAt = &deletedAt.Time
	}
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *pgOrderRepository) CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, request_number, user_id, vehicle_id, vehicle_snapshot, payment_breakdown, shipping_method,
			destination_name, destination_phone, destination_street, destination_city, destination_state,
			destination_country, destination_postcode, customer_notes, tags, priority, status, status_changed_at,
			status_changed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := querier.ExecContext(ctx, query,
		order.ID, order.RequestNumber, order.UserID, nullString(order.VehicleID), []byte(order.VehicleSnapshot),
		[]byte(order.PaymentBreakdown), order.ShippingMethod,
		order.Destination.FullName, order.Destination.Phone, order.Destination.Street, order.Destination.City,
		order.Destination.State, order.Destination.Country, order.Destination.Postcode, order.CustomerNotes,
		pq.Array(order.Tags), order.Priority, order.Status, order.StatusChangedAt, nullString(order.StatusChangedBy),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("order %s or request number %s already exists: %w", order.ID, order.RequestNumber, err)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *pgOrderRepository) NextRequestSequenceTx(ctx context.Context, querier domain.Querier) (int64, error) {
	var seq int64
	if err := querier.QueryRowContext(ctx, `SELECT nextval('order_request_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate request number: %w", err)
	}
	return seq, nil
}

func (r *pgOrderRepository) getOne(ctx context.Context, querier domain.Querier, key, where string, arg any) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	order, err := scanOrder(querier.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("order", key)
		}
		return nil, fmt.Errorf("failed to get order %s: %w", key, err)
	}
	return order, nil
}

func (r *pgOrderRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	return r.getOne(ctx, querier, id, `id = $1 AND deleted_at IS NULL`, id)
}

func (r *pgOrderRepository) GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	return r.getOne(ctx, querier, id, `id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *pgOrderRepository) GetByRequestNumberTx(ctx context.Context, querier domain.Querier, requestNumber string) (*domain.Order, error) {
	return r.getOne(ctx, querier, requestNumber, `request_number = $1 AND deleted_at IS NULL`, requestNumber)
}

func (r *pgOrderRepository) queryOrders(ctx context.Context, querier domain.Querier, query string, args ...any) ([]*domain.Order, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func (r *pgOrderRepository) GetByIDsTx(ctx context.Context, querier domain.Querier, ids []string) ([]*domain.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ANY($1) AND deleted_at IS NULL`
	return r.queryOrders(ctx, querier, query, pq.Array(ids))
}

func (r *pgOrderRepository) ListByUserTx(ctx context.Context, querier domain.Querier, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	return r.queryOrders(ctx, querier, query, userID)
}

func (r *pgOrderRepository) ListTx(ctx context.Context, querier domain.Querier, filter domain.OrderFilter) ([]*domain.Order, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, strings.Join(conds, " AND "), len(args)-1, len(args))
	return r.queryOrders(ctx, querier, query, args...)
}

func expectOneRow(res sql.Result, err error, op, id string) error {
	if err != nil {
		return fmt.Errorf("failed to %s for order %s: %w", op, id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s: %w", op, err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("order", id)
	}
	return nil
}

func (r *pgOrderRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.OrderStatus, actorID string, at time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, status_changed_at = $2, status_changed_by = $3, updated_at = $2
		WHERE id = $4 AND status = $5 AND deleted_at IS NULL
	`
	res, err := querier.ExecContext(ctx, query, to, at, nullString(actorID), id, from)
	if err != nil {
		return fmt.Errorf("failed to update status for order %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order status update: %w", err)
	}
	if rowsAffected == 0 {
		return order_repo.ErrStatusChanged
	}
	return nil
}

func (r *pgOrderRepository) CancelTx(ctx context.Context, querier domain.Querier, id string, from domain.OrderStatus, reason, actorID string, at time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, status_changed_at = $2, status_changed_by = $3, cancellation_reason = $4,
			cancelled_by = $3, cancelled_at = $2, updated_at = $2
		WHERE id = $5 AND status = $6 AND deleted_at IS NULL
	`
	res, err := querier.ExecContext(ctx, query, domain.OrderStatusCancelled, at, actorID, reason, id, from)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order cancel: %w", err)
	}
	if rowsAffected == 0 {
		return order_repo.ErrStatusChanged
	}
	return nil
}

func (r *pgOrderRepository) MarkRefundRequestedTx(ctx context.Context, querier domain.Querier, id, reason string, at time.Time) error {
	query := `
		UPDATE orders
		SET refund_requested = TRUE, refund_reason = $1, refund_requested_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4 AND refund_requested = FALSE AND deleted_at IS NULL
	`
	res, err := querier.ExecContext(ctx, query, reason, at, id, domain.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to mark refund requested for order %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for refund request: %w", err)
	}
	if rowsAffected == 0 {
		return order_repo.ErrStatusChanged
	}
	return nil
}

func (r *pgOrderRepository) UpdateTagsTx(ctx context.Context, querier domain.Querier, id string, tags []string, at time.Time) error {
	res, err := querier.ExecContext(ctx, `UPDATE orders SET tags = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`, pq.Array(tags), at, id)
	return expectOneRow(res, err, "update tags", id)
}

func (r *pgOrderRepository) UpdatePriorityTx(ctx context.Context, querier domain.Querier, id string, priority domain.Priority, at time.Time) error {
	res, err := querier.ExecContext(ctx, `UPDATE orders SET priority = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`, priority, at, id)
	return expectOneRow(res, err, "update priority", id)
}

func (r *pgOrderRepository) UpdateDetailsTx(ctx context.Context, querier domain.Querier, id string, dest domain.Destination, notes string, at time.Time) error {
	query := `
		UPDATE orders
		SET destination_name = $1, destination_phone = $2, destination_street = $3, destination_city = $4,
			destination_state = $5, destination_country = $6, destination_postcode = $7, customer_notes = $8,
			updated_at = $9
		WHERE id = $10 AND deleted_at IS NULL
	`
	res, err := querier.ExecContext(ctx, query, dest.FullName, dest.Phone, dest.Street, dest.City, dest.State,
		dest.Country, dest.Postcode, notes, at, id)
	return expectOneRow(res, err, "update details", id)
}

func (r *pgOrderRepository) SoftDeleteTx(ctx context.Context, querier domain.Querier, id string, at time.Time) error {
	res, err := querier.ExecContext(ctx, `UPDATE orders SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	return expectOneRow(res, err, "soft delete", id)
}

func (r *pgOrderRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return &domain.StateConflictError{Entity: "order", ID: id, Message: "order has payments and cannot be hard deleted"}
	}
	return expectOneRow(res, err, "delete", id)
}

func (r *pgOrderRepository) AddStatusChangeTx(ctx context.Context, querier domain.Querier, change *domain.StatusChange) error {
	query := `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := querier.ExecContext(ctx, query, change.ID, change.OrderID, change.From, change.To,
		nullString(change.ActorID), nullString(change.Reason), change.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record status change for order %s: %w", change.OrderID, err)
	}
	return nil
}

func (r *pgOrderRepository) ListStatusHistoryTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.StatusChange, error) {
	query := `
		SELECT id, order_id, from_status, to_status, actor_id, reason, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC
	`
	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		var actorID, reason sql.NullString
		if err := rows.Scan(&c.ID, &c.OrderID, &c.From, &c.To, &actorID, &reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history row: %w", err)
		}
		c.ActorID = actorID.String
		c.Reason = reason.String
		history = append(history, c)
	}
	return history, rows.Err()
}

func (r *pgOrderRepository) AddNoteTx(ctx context.Context, querier domain.Querier, note *domain.OrderNote) error {
	query := `INSERT INTO order_notes (id, order_id, author_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := querier.ExecContext(ctx, query, note.ID, note.OrderID, note.AuthorID, note.Body, note.CreatedAt); err != nil {
		return fmt.Errorf("failed to add note to order %s: %w", note.OrderID, err)
	}
	return nil
}

func (r *pgOrderRepository) ListNotesTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.OrderNote, error) {
	query := `SELECT id, order_id, author_id, body, created_at FROM order_notes WHERE order_id = $1 ORDER BY created_at ASC`
	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var notes []domain.OrderNote
	for rows.Next() {
		var n domain.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
