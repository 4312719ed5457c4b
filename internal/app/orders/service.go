package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vehicle-orders/internal/app/pricing"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/metrics"
	"vehicle-orders/internal/outbox"
	"vehicle-orders/internal/repository/activity_repo"
	"vehicle-orders/internal/repository/catalog_repo"
	"vehicle-orders/internal/repository/order_repo"
	"vehicle-orders/internal/repository/outbox_repo"
	"vehicle-orders/internal/util"
)

const (
	maxTags      = 20
	maxTagLength = 50
)

type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, req *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (*OrderResponse, error)
	GetOrderByRequestNumber(ctx context.Context, actor domain.Actor, requestNumber string) (*OrderResponse, error)
	GetMyOrders(ctx context.Context, actor domain.Actor) ([]*OrderResponse, error)
	ListOrders(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) ([]*OrderResponse, error)

	UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus, reason string) (*OrderResponse, error)
	BulkUpdateStatus(ctx context.Context, actor domain.Actor, orderIDs []string, target domain.OrderStatus, reason string) (*BulkUpdateResult, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (*OrderResponse, error)
	RequestRefund(ctx context.Context, actor domain.Actor, orderID, reason string) (*OrderResponse, error)
	RespondToQuote(ctx context.Context, actor domain.Actor, orderID string, accept bool) (*OrderResponse, error)

	AssignTags(ctx context.Context, actor domain.Actor, orderID string, tags []string) (*OrderResponse, error)
	SetPriority(ctx context.Context, actor domain.Actor, orderID string, priority domain.Priority) (*OrderResponse, error)
	AddAdminNote(ctx context.Context, actor domain.Actor, orderID, body string) (*domain.OrderNote, error)
	UpdateDetails(ctx context.Context, actor domain.Actor, orderID string, req *UpdateDetailsRequest) (*OrderResponse, error)
	DeleteOrder(ctx context.Context, actor domain.Actor, orderID string, hard bool) error

	GetHistory(ctx context.Context, actor domain.Actor, orderID string) ([]StatusChangeResponse, error)
	GetNotes(ctx context.Context, actor domain.Actor, orderID string) ([]domain.OrderNote, error)

	// TransitionTx advances an order inside the caller's transaction. It is
	// the entry point settlement uses so the payment and order writes commit
	// together.
	TransitionTx(ctx context.Context, q domain.Querier, orderID string, target domain.OrderStatus, actorID, reason string) (*domain.StatusChange, error)
}

type orderService struct {
	tx           domain.Transactor
	orderRepo    order_repo.OrderRepository
	outboxRepo   outbox_repo.OutboxRepository
	activityRepo activity_repo.ActivityRepository
	vehicles     catalog_repo.VehicleCatalog
	addresses    catalog_repo.AddressBook
	calculator   *pricing.Calculator
	eventsTopic  string
	logger       *zap.Logger
}

func NewOrderService(
	tx domain.Transactor,
	orderRepo order_repo.OrderRepository,
	outboxRepo outbox_repo.OutboxRepository,
	activityRepo activity_repo.ActivityRepository,
	vehicles catalog_repo.VehicleCatalog,
	addresses catalog_repo.AddressBook,
	calculator *pricing.Calculator,
	eventsTopic string,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		tx:           tx,
		orderRepo:    orderRepo,
		outboxRepo:   outboxRepo,
		activityRepo: activityRepo,
		vehicles:     vehicles,
		addresses:    addresses,
		calculator:   calculator,
		eventsTopic:  eventsTopic,
		logger:       logger,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, actor domain.Actor, req *CreateOrderRequest) (*OrderResponse, error) {
	if actor.ID == "" {
		return nil, &domain.ForbiddenError{Reason: "authenticated user required"}
	}
	if req == nil || strings.TrimSpace(req.VehicleID) == "" {
		return nil, domain.NewValidationError("vehicle is required", domain.FieldError{Field: "vehicleId", Message: "required"})
	}
	method, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		return nil, err
	}

	vehicle, err := s.vehicles.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	destination, err := s.addresses.DefaultAddress(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("a default shipping address is required",
				domain.FieldError{Field: "address", Message: "no default address on file"})
		}
		return nil, err
	}

	quote, err := s.calculator.Calculate(ctx, vehicle.PriceUSD, method)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(vehicle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vehicle snapshot: %w", err)
	}
	breakdown, err := json.Marshal(quote.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment breakdown: %w", err)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:               util.GenerateUUID(),
		UserID:           actor.ID,
		VehicleID:        vehicle.ID,
		VehicleSnapshot:  snapshot,
		PaymentBreakdown: breakdown,
		ShippingMethod:   method,
		Destination:      *destination,
		CustomerNotes:    strings.TrimSpace(req.Notes),
		Tags:             []string{},
		Priority:         domain.PriorityNormal,
		Status:           domain.OrderStatusPendingQuote,
		StatusChangedAt:  now,
		StatusChangedBy:  actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		seq, err := s.orderRepo.NextRequestSequenceTx(ctx, q)
		if err != nil {
			return err
		}
		order.RequestNumber = util.FormatRequestNumber(now, seq)
		if err := s.orderRepo.CreateTx(ctx, q, order); err != nil {
			return err
		}
		if err := s.orderRepo.AddStatusChangeTx(ctx, q, &domain.StatusChange{
			ID:        util.GenerateUUID(),
			OrderID:   order.ID,
			To:        order.Status,
			ActorID:   actor.ID,
			Reason:    "order created",
			CreatedAt: now,
		}); err != nil {
			return err
		}
		msg, err := outbox.NewMessage(domain.AggregateOrder, order.ID, domain.EventOrderCreated, s.eventsTopic, domain.OrderCreatedEvent{
			OrderID:       order.ID,
			RequestNumber: order.RequestNumber,
			UserID:        order.UserID,
			Status:        string(order.Status),
			Timestamp:     now,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.CreateMessageTx(ctx, q, msg)
	})
	if err != nil {
		s.logger.Error("Failed to create order", zap.String("user_id", actor.ID), zap.String("vehicle_id", req.VehicleID), zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	metrics.OrdersCreated.WithLabelValues(string(method)).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("request_number", order.RequestNumber),
		zap.String("user_id", actor.ID),
		zap.String("charge_total_usd", quote.TotalUSD.String()))
	return mapOrderToResponse(order), nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (*OrderResponse, error) {
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByIDTx(ctx, s.tx.Querier(), orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, &domain.ForbiddenError{Reason: "order belongs to another user"}
	}
	return mapOrderToResponse(order), nil
}

func (s *orderService) GetOrderByRequestNumber(ctx context.Context, actor domain.Actor, requestNumber string) (*OrderResponse, error) {
	order, err := s.orderRepo.GetByRequestNumberTx(ctx, s.tx.Querier(), requestNumber)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, &domain.ForbiddenError{Reason: "order belongs to another user"}
	}
	return mapOrderToResponse(order), nil
}

func (s *orderService) GetMyOrders(ctx context.Context, actor domain.Actor) ([]*OrderResponse, error) {
	orders, err := s.orderRepo.ListByUserTx(ctx, s.tx.Querier(), actor.ID)
	if err != nil {
		s.logger.Error("Failed to list orders for user", zap.String("user_id", actor.ID), zap.Error(err))
		return nil, err
	}
	return mapOrdersToResponse(orders), nil
}

func (s *orderService) ListOrders(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) ([]*OrderResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("invalid order status", domain.FieldError{Field: "status", Message: "unknown status"})
	}
	orders, err := s.orderRepo.ListTx(ctx, s.tx.Querier(), filter)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	return mapOrdersToResponse(orders), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus, reason string) (*OrderResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := validateTarget(target, reason); err != nil {
		return nil, err
	}

	var change *domain.StatusChange
	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		var err error
		change, err = s.applyTransitionTx(ctx, q, order, target, actor.ID, reason)
		return err
	})
	if err != nil {
		s.logFailure("update status", orderID, err, zap.String("target", string(target)))
		return nil, err
	}

	recordTransition(change)
	s.recordActivity(ctx, actor.ID, "orders.update_status", orderID, map[string]string{"from": string(change.From), "to": string(change.To)})
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("admin_id", actor.ID))
	return mapOrderToResponse(order), nil
}

// BulkUpdateStatus validates the whole batch before the first write: any
// missing id or illegal edge rejects it. Ids already at the target are left
// alone so a retried batch converges. Each order then commits on its own.
func (s *orderService) BulkUpdateStatus(ctx context.Context, actor domain.Actor, orderIDs []string, target domain.OrderStatus, reason string) (*BulkUpdateResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := validateTarget(target, reason); err != nil {
		return nil, err
	}
	ids := dedupe(orderIDs)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("at least one order id is required", domain.FieldError{Field: "orderIds", Message: "required"})
	}
	var malformed []domain.FieldError
	for i, id := range ids {
		if !util.ValidUUID(id) {
			malformed = append(malformed, domain.FieldError{Field: fmt.Sprintf("orderIds[%d]", i), Message: "not a valid order id: " + id})
		}
	}
	if len(malformed) > 0 {
		return nil, domain.NewValidationError("malformed order ids", malformed...)
	}

	existing, err := s.orderRepo.GetByIDsTx(ctx, s.tx.Querier(), ids)
	if err != nil {
		s.logger.Error("Failed to load orders for bulk update", zap.Error(err))
		return nil, err
	}
	byID := make(map[string]*domain.Order, len(existing))
	for _, o := range existing {
		byID[o.ID] = o
	}

	var missing, illegalIDs, illegal []string
	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if o.Status != target && !o.Status.CanTransitionTo(target) {
			illegalIDs = append(illegalIDs, id)
			illegal = append(illegal, fmt.Sprintf("%s: %s -> %s", id, o.Status, target))
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("Bulk status update rejected, unknown orders", zap.Strings("order_ids", missing))
		return nil, domain.NewNotFoundError("order", strings.Join(missing, ","))
	}
	if len(illegal) > 0 {
		s.logger.Warn("Bulk status update rejected, illegal transitions", zap.Strings("transitions", illegal))
		return nil, &domain.StateConflictError{
			Entity:  "order",
			ID:      strings.Join(illegalIDs, ","),
			To:      string(target),
			Message: "batch rejected, illegal transitions: " + strings.Join(illegal, "; "),
		}
	}

	result := &BulkUpdateResult{Updated: []string{}, Unchanged: []string{}}
	for _, id := range ids {
		var change *domain.StatusChange
		err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
			order, err := s.orderRepo.GetByIDForUpdateTx(ctx, q, id)
			if err != nil {
				return err
			}
			if order.Status == target {
				return nil
			}
			change, err = s.applyTransitionTx(ctx, q, order, target, actor.ID, reason)
			return err
		})
		switch {
		case err != nil:
			s.logFailure("bulk update status", id, err, zap.String("target", string(target)))
			result.Failed = append(result.Failed, BulkFailure{OrderID: id, Error: err.Error()})
		case change == nil:
			result.Unchanged = append(result.Unchanged, id)
		default:
			recordTransition(change)
			result.Updated = append(result.Updated, id)
		}
	}

	s.recordActivity(ctx, actor.ID, "orders.bulk_update_status", strings.Join(ids, ","), map[string]any{
		"to":        target,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
	})
	s.logger.Info("Bulk order status update finished",
		zap.String("target", string(target)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *orderService) Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (*OrderResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("cancellation reason is required", domain.FieldError{Field: "reason", Message: "required"})
	}

	var change *domain.StatusChange
	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.UserID) {
			return &domain.ForbiddenError{Reason: "order belongs to another user"}
		}
		if !order.Status.IsCancellable() {
			return &domain.StateConflictError{
				Entity:  "order",
				ID:      order.ID,
				From:    string(order.Status),
				To:      string(domain.OrderStatusCancelled),
				Message: fmt.Sprintf("order cannot be cancelled from status %s", order.Status),
			}
		}
		var err error
		change, err = s.applyTransitionTx(ctx, q, order, domain.OrderStatusCancelled, actor.ID, reason)
		return err
	})
	if err != nil {
		s.logFailure("cancel", orderID, err)
		return nil, err
	}

	recordTransition(change)
	s.logger.Info("Order cancelled", zap.String("order_id", orderID), zap.String("actor_id", actor.ID), zap.String("from", string(change.From)))
	return mapOrderToResponse(order), nil
}

func (s *orderService) RequestRefund(ctx context.Context, actor domain.Actor, orderID, reason string) (*OrderResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("refund reason is required", domain.FieldError{Field: "reason", Message: "required"})
	}

	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.UserID) {
			return &domain.ForbiddenError{Reason: "order belongs to another user"}
		}
		if order.Status != domain.OrderStatusCancelled {
			return &domain.StateConflictError{Entity: "order", ID: order.ID, From: string(order.Status),
				Message: "refund can only be requested for a cancelled order"}
		}
		if order.RefundRequested {
			return &domain.StateConflictError{Entity: "order", ID: order.ID, From: string(order.Status),
				Message: "refund already requested"}
		}
		err := s.orderRepo.MarkRefundRequestedTx(ctx, q, order.ID, reason, time.Now().UTC())
		if errors.Is(err, order_repo.ErrStatusChanged) {
			return &domain.StateConflictError{Entity: "order", ID: order.ID, Message: "refund already requested"}
		}
		return err
	})
	if err != nil {
		s.logFailure("request refund", orderID, err)
		return nil, err
	}

	s.logger.Info("Refund requested", zap.String("order_id", orderID), zap.String("actor_id", actor.ID))
	return mapOrderToResponse(order), nil
}

func (s *orderService) RespondToQuote(ctx context.Context, actor domain.Actor, orderID string, accept bool) (*OrderResponse, error) {
	target := domain.OrderStatusQuoteRejected
	if accept {
		target = domain.OrderStatusQuoteAccepted
	}

	var change *domain.StatusChange
	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.UserID) {
			return &domain.ForbiddenError{Reason: "order belongs to another user"}
		}
		if order.Status != domain.OrderStatusQuoteSent {
			return domain.NewTransitionError(order.ID, order.Status, target)
		}
		var err error
		change, err = s.applyTransitionTx(ctx, q, order, target, actor.ID, "quote response")
		return err
	})
	if err != nil {
		s.logFailure("respond to quote", orderID, err)
		return nil, err
	}

	recordTransition(change)
	s.logger.Info("Quote response recorded", zap.String("order_id", orderID), zap.String("status", string(target)))
	return mapOrderToResponse(order), nil
}

func (s *orderService) AssignTags(ctx context.Context, actor domain.Actor, orderID string, tags []string) (*OrderResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	normalized, err := normalizeTags(tags)
	if err != nil {
		return nil, err
	}

	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		return s.orderRepo.UpdateTagsTx(ctx, q, order.ID, normalized, time.Now().UTC())
	})
	if err != nil {
		s.logFailure("assign tags", orderID, err)
		return nil, err
	}
	s.recordActivity(ctx, actor.ID, "orders.assign_tags", orderID, map[string]any{"tags": normalized})
	return mapOrderToResponse(order), nil
}

func (s *orderService) SetPriority(ctx context.Context, actor domain.Actor, orderID string, priority domain.Priority) (*OrderResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !priority.IsValid() {
		return nil, domain.NewValidationError("invalid priority",
			domain.FieldError{Field: "priority", Message: "must be one of LOW, NORMAL, HIGH, URGENT"})
	}

	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		return s.orderRepo.UpdatePriorityTx(ctx, q, order.ID, priority, time.Now().UTC())
	})
	if err != nil {
		s.logFailure("set priority", orderID, err)
		return nil, err
	}
	s.recordActivity(ctx, actor.ID, "orders.set_priority", orderID, map[string]string{"priority": string(priority)})
	return mapOrderToResponse(order), nil
}

func (s *orderService) AddAdminNote(ctx context.Context, actor domain.Actor, orderID, body string) (*domain.OrderNote, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.NewValidationError("note body is required", domain.FieldError{Field: "note", Message: "required"})
	}

	note := &domain.OrderNote{
		ID:        util.GenerateUUID(),
		OrderID:   orderID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		return s.orderRepo.AddNoteTx(ctx, q, note)
	})
	if err != nil {
		s.logFailure("add note", orderID, err)
		return nil, err
	}
	s.recordActivity(ctx, actor.ID, "orders.add_note", orderID, map[string]string{"noteId": note.ID})
	return note, nil
}

// UpdateDetails edits the destination and customer notes. Snapshots are never
// touched and locked orders are rejected.
func (s *orderService) UpdateDetails(ctx context.Context, actor domain.Actor, orderID string, req *UpdateDetailsRequest) (*OrderResponse, error) {
	if req == nil || (req.Destination == nil && req.Notes == nil) {
		return nil, domain.NewValidationError("nothing to update")
	}
	if req.Destination != nil {
		if err := validateDestination(*req.Destination); err != nil {
			return nil, err
		}
	}

	order, err := s.mutate(ctx, orderID, func(ctx context.Context, q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.UserID) {
			return &domain.ForbiddenError{Reason: "order belongs to another user"}
		}
		if order.Status.IsLocked() {
			return &domain.StateConflictError{Entity: "order", ID: order.ID, From: string(order.Status),
				Message: fmt.Sprintf("order is locked in status %s", order.Status)}
		}
		destination := order.Destination
		if req.Destination != nil {
			destination = *req.Destination
		}
		notes := order.CustomerNotes
		if req.Notes != nil {
			notes = strings.TrimSpace(*req.Notes)
		}
		return s.orderRepo.UpdateDetailsTx(ctx, q, order.ID, destination, notes, time.Now().UTC())
	})
	if err != nil {
		s.logFailure("update details", orderID, err)
		return nil, err
	}
	return mapOrderToResponse(order), nil
}

// DeleteOrder soft-deletes for admins. Hard deletes are reserved for super
// admins and refused once payments reference the order.
func (s *orderService) DeleteOrder(ctx context.Context, actor domain.Actor, orderID string, hard bool) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if hard && !actor.IsSuperAdmin() {
		return &domain.ForbiddenError{Reason: "hard delete requires super admin"}
	}
	if err := checkOrderID(orderID); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		if hard {
			return s.orderRepo.DeleteTx(ctx, q, orderID)
		}
		return s.orderRepo.SoftDeleteTx(ctx, q, orderID, time.Now().UTC())
	})
	if err != nil {
		s.logFailure("delete", orderID, err, zap.Bool("hard", hard))
		return err
	}

	action := "orders.soft_delete"
	if hard {
		action = "orders.hard_delete"
	}
	s.recordActivity(ctx, actor.ID, action, orderID, nil)
	s.logger.Info("Order deleted", zap.String("order_id", orderID), zap.Bool("hard", hard), zap.String("admin_id", actor.ID))
	return nil
}

func (s *orderService) GetHistory(ctx context.Context, actor domain.Actor, orderID string) ([]StatusChangeResponse, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	history, err := s.orderRepo.ListStatusHistoryTx(ctx, s.tx.Querier(), orderID)
	if err != nil {
		return nil, err
	}
	return mapHistoryToResponse(history), nil
}

func (s *orderService) GetNotes(ctx context.Context, actor domain.Actor, orderID string) ([]domain.OrderNote, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	if _, err := s.orderRepo.GetByIDTx(ctx, s.tx.Querier(), orderID); err != nil {
		return nil, err
	}
	notes, err := s.orderRepo.ListNotesTx(ctx, s.tx.Querier(), orderID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.OrderNote{}
	}
	return notes, nil
}

func (s *orderService) TransitionTx(ctx context.Context, q domain.Querier, orderID string, target domain.OrderStatus, actorID, reason string) (*domain.StatusChange, error) {
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByIDForUpdateTx(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return s.applyTransitionTx(ctx, q, order, target, actorID, reason)
}

// applyTransitionTx is the single write path for order status. The table is
// consulted first, the update is conditional on the status read, and the
// history row and outbox event join the same transaction.
func (s *orderService) applyTransitionTx(ctx context.Context, q domain.Querier, order *domain.Order, target domain.OrderStatus, actorID, reason string) (*domain.StatusChange, error) {
	if !order.Status.CanTransitionTo(target) {
		return nil, domain.NewTransitionError(order.ID, order.Status, target)
	}

	now := time.Now().UTC()
	var err error
	if target == domain.OrderStatusCancelled {
		err = s.orderRepo.CancelTx(ctx, q, order.ID, order.Status, reason, actorID, now)
	} else {
		err = s.orderRepo.UpdateStatusTx(ctx, q, order.ID, order.Status, target, actorID, now)
	}
	if errors.Is(err, order_repo.ErrStatusChanged) {
		return nil, &domain.StateConflictError{
			Entity:  "order",
			ID:      order.ID,
			From:    string(order.Status),
			To:      string(target),
			Message: "order status changed concurrently, re-read before retrying",
		}
	}
	if err != nil {
		return nil, err
	}

	change := &domain.StatusChange{
		ID:        util.GenerateUUID(),
		OrderID:   order.ID,
		From:      order.Status,
		To:        target,
		ActorID:   actorID,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.orderRepo.AddStatusChangeTx(ctx, q, change); err != nil {
		return nil, err
	}

	msg, err := outbox.NewMessage(domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, s.eventsTopic, domain.OrderStatusChangedEvent{
		OrderID:   order.ID,
		From:      string(change.From),
		To:        string(change.To),
		ActorID:   actorID,
		Reason:    reason,
		Timestamp: now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.outboxRepo.CreateMessageTx(ctx, q, msg); err != nil {
		return nil, err
	}
	return change, nil
}

// checkOrderID maps an id that cannot be a UUID to not found before it
// reaches a uuid column.
func checkOrderID(id string) error {
	if !util.ValidUUID(id) {
		return domain.NewNotFoundError("order", id)
	}
	return nil
}

// mutate loads the order under lock, applies fn and returns the re-read row.
func (s *orderService) mutate(ctx context.Context, orderID string, fn func(ctx context.Context, q domain.Querier, order *domain.Order) error) (*domain.Order, error) {
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	var updated *domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		order, err := s.orderRepo.GetByIDForUpdateTx(ctx, q, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, q, order); err != nil {
			return err
		}
		updated, err = s.orderRepo.GetByIDTx(ctx, q, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// recordActivity is best effort; a failure never reaches the caller.
func (s *orderService) recordActivity(ctx context.Context, actorID, action, subjectID string, details any) {
	var raw json.RawMessage
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("Failed to encode admin activity", zap.String("action", action), zap.Error(err))
			return
		}
		raw = encoded
	}
	activity := &domain.AdminActivity{
		ID:        util.GenerateUUID(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: subjectID,
		Details:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.activityRepo.CreateTx(ctx, s.tx.Querier(), activity); err != nil {
		s.logger.Warn("Failed to record admin activity", zap.String("action", action), zap.String("subject_id", subjectID), zap.Error(err))
	}
}

func (s *orderService) logFailure(op, orderID string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.String("order_id", orderID), zap.Error(err))
	if isBusinessError(err) {
		s.logger.Warn("Order operation rejected", fields...)
		return
	}
	s.logger.Error("Order operation failed", fields...)
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrStateConflict) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden)
}

func recordTransition(change *domain.StatusChange) {
	if change == nil {
		return
	}
	metrics.OrderTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return &domain.ForbiddenError{Reason: "admin role required"}
	}
	return nil
}

func validateTarget(target domain.OrderStatus, reason string) error {
	if !target.IsValid() {
		return domain.NewValidationError("invalid order status", domain.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)})
	}
	if target == domain.OrderStatusCancelled && reason == "" {
		return domain.NewValidationError("cancellation reason is required", domain.FieldError{Field: "reason", Message: "required"})
	}
	return nil
}

func validateDestination(d domain.Destination) error {
	var fields []domain.FieldError
	required := []struct{ name, value string }{
		{"destination.fullName", d.FullName},
		{"destination.street", d.Street},
		{"destination.city", d.City},
		{"destination.country", d.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields = append(fields, domain.FieldError{Field: f.name, Message: "required"})
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError("invalid destination", fields...)
	}
	return nil
}

func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if len(t) > maxTagLength {
			return nil, domain.NewValidationError("tag too long", domain.FieldError{Field: "tags", Message: fmt.Sprintf("tags are limited to %d characters", maxTagLength)})
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, domain.NewValidationError("too many tags", domain.FieldError{Field: "tags", Message: fmt.Sprintf("at most %d tags", maxTags)})
	}
	return out, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
