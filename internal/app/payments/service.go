package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/pricing"
	"vehicle-orders/internal/domain"
	kafkaInfra "vehicle-orders/internal/infrastructure/kafka"
	"vehicle-orders/internal/metrics"
	"vehicle-orders/internal/outbox"
	"vehicle-orders/internal/provider"
	"vehicle-orders/internal/repository/inbox_repo"
	"vehicle-orders/internal/repository/order_repo"
	"vehicle-orders/internal/repository/outbox_repo"
	"vehicle-orders/internal/repository/payments_repo"
	"vehicle-orders/internal/util"
)

// errSettledConcurrently marks a settlement write that lost the race to
// another caller; the payment is re-read to report the winner's outcome.
var errSettledConcurrently = errors.New("payment settled concurrently")

// openCheckoutWindow bounds how long an unsettled checkout blocks a retry of
// the same payment type. Provider checkout sessions expire well before it.
const openCheckoutWindow = 30 * time.Minute

type PaymentService interface {
	Initiate(ctx context.Context, actor domain.Actor, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	// Verify is the user-triggered settlement path after redirect-back.
	Verify(ctx context.Context, actor domain.Actor, reference, providerName string) (*SettlementResult, error)
	// Settle is the single convergence point of the poll and webhook paths.
	Settle(ctx context.Context, reference string, name provider.Name) (*SettlementResult, error)

	AcceptWebhook(ctx context.Context, providerName string, payload []byte, header http.Header) error
	ProcessWebhookEvent(ctx context.Context, event domain.WebhookReceivedEvent) error

	GetPayments(ctx context.Context, actor domain.Actor, limit, offset int) ([]*PaymentResponse, error)
	GetUserPayments(ctx context.Context, actor domain.Actor) ([]*PaymentResponse, error)
	GetPaymentByID(ctx context.Context, actor domain.Actor, paymentID string) (*PaymentResponse, error)
	GetOrderPayments(ctx context.Context, actor domain.Actor, orderID string) ([]*PaymentResponse, error)
}

// OrderTransitioner advances an order inside the settlement transaction.
type OrderTransitioner interface {
	TransitionTx(ctx context.Context, q domain.Querier, orderID string, target domain.OrderStatus, actorID, reason string) (*domain.StatusChange, error)
}

type paymentService struct {
	tx           domain.Transactor
	paymentRepo  payments_repo.PaymentRepository
	orderRepo    order_repo.OrderRepository
	outboxRepo   outbox_repo.OutboxRepository
	inboxRepo    inbox_repo.InboxRepository
	orders       OrderTransitioner
	providers    *provider.Registry
	fees         pricing.FeeSource
	publisher    kafkaInfra.Producer
	eventsTopic  string
	webhookTopic string
	logger       *zap.Logger
}

// NewPaymentService wires the settlement engine. A nil publisher makes
// AcceptWebhook process events inline instead of queueing them on Kafka.
func NewPaymentService(
	tx domain.Transactor,
	paymentRepo payments_repo.PaymentRepository,
	orderRepo order_repo.OrderRepository,
	outboxRepo outbox_repo.OutboxRepository,
	inboxRepo inbox_repo.InboxRepository,
	orders OrderTransitioner,
	providers *provider.Registry,
	fees pricing.FeeSource,
	publisher kafkaInfra.Producer,
	eventsTopic string,
	webhookTopic string,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		tx:           tx,
		paymentRepo:  paymentRepo,
		orderRepo:    orderRepo,
		outboxRepo:   outboxRepo,
		inboxRepo:    inboxRepo,
		orders:       orders,
		providers:    providers,
		fees:         fees,
		publisher:    publisher,
		eventsTopic:  eventsTopic,
		webhookTopic: webhookTopic,
		logger:       logger,
	}
}

func (s *paymentService) Initiate(ctx context.Context, actor domain.Actor, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if actor.ID == "" {
		return nil, &domain.ForbiddenError{Reason: "authenticated user required"}
	}
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.NewValidationError("order is required", domain.FieldError{Field: "orderId", Message: "required"})
	}
	name, err := provider.ParseName(req.Provider)
	if err != nil {
		return nil, err
	}
	paymentType, err := domain.ParsePaymentType(req.PaymentType)
	if err != nil {
		return nil, err
	}
	adapter, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}

	if !util.ValidUUID(req.OrderID) {
		return nil, domain.NewNotFoundError("order", req.OrderID)
	}
	order, err := s.orderRepo.GetByIDTx(ctx, s.tx.Querier(), req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkInitiateAllowed(actor, order, paymentType); err != nil {
		return nil, err
	}
	breakdown, err := order.Breakdown()
	if err != nil {
		return nil, fmt.Errorf("failed to decode payment breakdown for order %s: %w", order.ID, err)
	}
	existing, err := s.paymentRepo.ListByOrderTx(ctx, s.tx.Querier(), order.ID)
	if err != nil {
		return nil, err
	}
	if err := checkNoOpenCheckout(order.ID, paymentType, existing, time.Now().UTC()); err != nil {
		return nil, err
	}
	amount, err := s.amountFor(ctx, order, breakdown, paymentType, req.AmountUSD, existing)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ref := util.GenerateTransactionRef(now)
	handle, err := adapter.InitializePayment(ctx, provider.InitRequest{
		AmountUSD: amount,
		Email:     actor.Email,
		Reference: ref,
		Breakdown: breakdown,
		Metadata: map[string]string{
			"orderId":       order.ID,
			"requestNumber": order.RequestNumber,
			"paymentType":   string(paymentType),
		},
	})
	if err != nil {
		s.logger.Error("Failed to initialize payment with provider",
			zap.String("provider", string(name)),
			zap.String("order_id", order.ID),
			zap.String("reference", ref),
			zap.Error(err))
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{
		"breakdown": breakdown,
		"provider":  handle.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment metadata: %w", err)
	}
	payment := &domain.Payment{
		ID:                util.GenerateUUID(),
		TransactionRef:    ref,
		ProviderReference: handle.ProviderReference,
		OrderID:           order.ID,
		UserID:            order.UserID,
		AmountUSD:         amount,
		Type:              paymentType,
		Provider:          string(name),
		Status:            domain.PaymentStatusPending,
		Currency:          handle.Currency,
		Metadata:          metadata,
		EscrowStatus:      domain.EscrowStatusNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		if _, err := s.orderRepo.GetByIDForUpdateTx(ctx, q, order.ID); err != nil {
			return err
		}
		current, err := s.paymentRepo.ListByOrderTx(ctx, q, order.ID)
		if err != nil {
			return err
		}
		if err := checkNoOpenCheckout(order.ID, paymentType, current, now); err != nil {
			return err
		}
		return s.paymentRepo.CreateTx(ctx, q, payment)
	})
	if errors.Is(err, domain.ErrStateConflict) {
		s.logger.Warn("Payment initiation lost to a concurrent checkout",
			zap.String("reference", ref),
			zap.String("order_id", order.ID))
		return nil, err
	}
	if err != nil {
		s.logger.Error("Failed to persist initiated payment",
			zap.String("reference", ref),
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	metrics.PaymentsInitiated.WithLabelValues(string(name), string(paymentType)).Inc()
	s.logger.Info("Payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("reference", ref),
		zap.String("order_id", order.ID),
		zap.String("provider", string(name)),
		zap.String("payment_type", string(paymentType)),
		zap.String("amount_usd", amount.StringFixed(2)))

	return &InitiatePaymentResponse{
		PaymentID:        payment.ID,
		Reference:        ref,
		Provider:         string(name),
		PaymentType:      string(paymentType),
		AmountUSD:        amount,
		Currency:         handle.Currency,
		AuthorizationURL: handle.AuthorizationURL,
		ClientSecret:     handle.ClientSecret,
		Breakdown:        *breakdown,
	}, nil
}

func checkInitiateAllowed(actor domain.Actor, order *domain.Order, paymentType domain.PaymentType) error {
	if !actor.CanAccess(order.UserID) {
		return &domain.ForbiddenError{Reason: "order belongs to another user"}
	}
	if paymentType.IsRefund() {
		if !actor.IsAdmin() {
			return &domain.ForbiddenError{Reason: "refunds are issued by admins"}
		}
		if order.Status != domain.OrderStatusCancelled || !order.RefundRequested {
			return &domain.StateConflictError{Entity: "order", ID: order.ID, From: string(order.Status),
				To: string(paymentType.SettledOrderStatus()), Message: "refunds require a cancelled order with a refund request"}
		}
	}
	if target := paymentType.SettledOrderStatus(); !order.Status.CanTransitionTo(target) {
		return domain.NewTransitionError(order.ID, order.Status, target)
	}
	return nil
}

// checkNoOpenCheckout refuses a second payment of the same type while an
// earlier one is still PENDING inside openCheckoutWindow. Only one of them
// could ever advance the order; the other would stay PENDING for good.
func checkNoOpenCheckout(orderID string, paymentType domain.PaymentType, existing []*domain.Payment, now time.Time) error {
	for _, p := range existing {
		if p.Type != paymentType || p.Status != domain.PaymentStatusPending {
			continue
		}
		if now.Sub(p.CreatedAt) < openCheckoutWindow {
			return &domain.StateConflictError{
				Entity:  "order",
				ID:      orderID,
				Message: fmt.Sprintf("a %s payment (%s) is already awaiting settlement", paymentType, p.TransactionRef),
			}
		}
	}
	return nil
}

// amountFor derives the USD amount of a new payment from the breakdown stored
// on the order and the payments already completed against it.
func (s *paymentService) amountFor(ctx context.Context, order *domain.Order, breakdown *domain.PriceBreakdown, paymentType domain.PaymentType, requested *decimal.Decimal, existing []*domain.Payment) (decimal.Decimal, error) {
	collected, refunded := decimal.Zero, decimal.Zero
	for _, p := range existing {
		if p.Status != domain.PaymentStatusCompleted {
			continue
		}
		if p.Type.IsRefund() {
			refunded = refunded.Add(p.AmountUSD)
		} else {
			collected = collected.Add(p.AmountUSD)
		}
	}
	charge := breakdown.ChargeTotalUSD

	var amount decimal.Decimal
	switch paymentType {
	case domain.PaymentTypeFullPayment:
		amount = charge
	case domain.PaymentTypeDeposit:
		fees, err := s.fees.Current(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to load fee schedule: %w", err)
		}
		amount = pricing.DepositAmount(charge, *fees)
	case domain.PaymentTypeBalance:
		amount = charge.Sub(collected)
	case domain.PaymentTypeRefund:
		amount = collected.Sub(refunded)
	case domain.PaymentTypePartialRefund:
		if requested == nil || !requested.IsPositive() {
			return decimal.Zero, domain.NewValidationError("a positive amount is required for a partial refund",
				domain.FieldError{Field: "amountUsd", Message: "must be greater than 0"})
		}
		if requested.GreaterThan(collected.Sub(refunded)) {
			return decimal.Zero, domain.NewValidationError("partial refund exceeds the refundable amount",
				domain.FieldError{Field: "amountUsd", Message: "must not exceed " + collected.Sub(refunded).StringFixed(2)})
		}
		amount = *requested
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, &domain.StateConflictError{Entity: "order", ID: order.ID, From: string(order.Status),
			Message: fmt.Sprintf("nothing to charge for a %s payment", paymentType)}
	}
	return amount, nil
}

func (s *paymentService) Verify(ctx context.Context, actor domain.Actor, reference, providerName string) (*SettlementResult, error) {
	payment, err := s.paymentRepo.GetByRefTx(ctx, s.tx.Querier(), reference)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(payment.UserID) {
		return nil, &domain.ForbiddenError{Reason: "payment belongs to another user"}
	}
	if providerName == "" {
		providerName = payment.Provider
	}
	name, err := provider.ParseName(providerName)
	if err != nil {
		return nil, err
	}
	return s.Settle(ctx, reference, name)
}

// Settle checks the payment, asks the provider outside any transaction and
// then commits the payment and order writes together. A completed payment
// short-circuits before the provider is called.
func (s *paymentService) Settle(ctx context.Context, reference string, name provider.Name) (*SettlementResult, error) {
	payment, err := s.paymentRepo.GetByRefTx(ctx, s.tx.Querier(), reference)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case domain.PaymentStatusCompleted:
		metrics.PaymentsSettled.WithLabelValues(payment.Provider, "already_completed").Inc()
		return s.settledResult(payment, true, ""), nil
	case domain.PaymentStatusFailed:
		return nil, failedConflict(payment)
	}
	if payment.Provider != string(name) {
		return nil, domain.NewValidationError("provider does not match payment",
			domain.FieldError{Field: "provider", Message: fmt.Sprintf("payment %s was initiated with %s", reference, payment.Provider)})
	}
	adapter, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}

	verifyRef := payment.ProviderReference
	if verifyRef == "" {
		verifyRef = payment.TransactionRef
	}
	verification, err := adapter.VerifyPayment(ctx, verifyRef)
	if err != nil {
		s.logger.Warn("Payment verification failed upstream, recording failure",
			zap.String("reference", reference),
			zap.String("provider", string(name)),
			zap.Error(err))
		verification = &provider.VerifyResult{Success: false, Reason: err.Error()}
	}

	if !verification.Success {
		return s.fail(ctx, payment, verification)
	}
	return s.complete(ctx, payment, verification)
}

func (s *paymentService) complete(ctx context.Context, payment *domain.Payment, verification *provider.VerifyResult) (*SettlementResult, error) {
	var (
		settled *domain.Payment
		change  *domain.StatusChange
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		current, err := s.paymentRepo.GetByRefForUpdateTx(ctx, q, payment.TransactionRef)
		if err != nil {
			return err
		}
		if current.Status != domain.PaymentStatusPending {
			return errSettledConcurrently
		}

		now := time.Now().UTC()
		err = s.paymentRepo.MarkCompletedTx(ctx, q, current.TransactionRef, domain.Settlement{
			ProviderTransactionID: verification.ProviderTransactionID,
			ReceiptURL:            verification.ReceiptURL,
			CompletedAt:           now,
		})
		if errors.Is(err, payments_repo.ErrNotPending) {
			return errSettledConcurrently
		}
		if err != nil {
			return err
		}

		change, err = s.orders.TransitionTx(ctx, q, current.OrderID, current.Type.SettledOrderStatus(),
			domain.SystemActorID, fmt.Sprintf("%s payment %s settled", current.Type, current.TransactionRef))
		if err != nil {
			return err
		}

		if err := s.publishSettlementTx(ctx, q, current, domain.PaymentStatusCompleted, "", now); err != nil {
			return err
		}
		settled, err = s.paymentRepo.GetByRefTx(ctx, q, current.TransactionRef)
		return err
	})
	if errors.Is(err, errSettledConcurrently) {
		return s.concurrentOutcome(ctx, payment.TransactionRef)
	}
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			s.logger.Error("Payment verified but order could not advance, payment left pending",
				zap.String("reference", payment.TransactionRef),
				zap.String("order_id", payment.OrderID),
				zap.Error(err))
		} else {
			s.logger.Error("Failed to settle payment", zap.String("reference", payment.TransactionRef), zap.Error(err))
		}
		return nil, err
	}

	metrics.PaymentsSettled.WithLabelValues(payment.Provider, "completed").Inc()
	if change != nil {
		metrics.OrderTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
	}
	s.logger.Info("Payment settled",
		zap.String("reference", payment.TransactionRef),
		zap.String("order_id", payment.OrderID),
		zap.String("provider", payment.Provider),
		zap.String("order_status", string(change.To)))

	result := s.settledResult(settled, false, "")
	result.OrderStatus = string(change.To)
	return result, nil
}

func (s *paymentService) fail(ctx context.Context, payment *domain.Payment, verification *provider.VerifyResult) (*SettlementResult, error) {
	now := time.Now().UTC()
	failure := map[string]any{
		"reason":   verification.Reason,
		"failedAt": now,
	}
	if len(verification.Raw) > 0 && json.Valid(verification.Raw) {
		failure["raw"] = verification.Raw
	}
	patch, err := json.Marshal(map[string]any{"failure": failure})
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure metadata: %w", err)
	}

	var failed *domain.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		err := s.paymentRepo.MarkFailedTx(ctx, q, payment.TransactionRef, patch, now)
		if errors.Is(err, payments_repo.ErrNotPending) {
			return errSettledConcurrently
		}
		if err != nil {
			return err
		}
		if err := s.publishSettlementTx(ctx, q, payment, domain.PaymentStatusFailed, verification.Reason, now); err != nil {
			return err
		}
		failed, err = s.paymentRepo.GetByRefTx(ctx, q, payment.TransactionRef)
		return err
	})
	if errors.Is(err, errSettledConcurrently) {
		return s.concurrentOutcome(ctx, payment.TransactionRef)
	}
	if err != nil {
		s.logger.Error("Failed to record payment failure", zap.String("reference", payment.TransactionRef), zap.Error(err))
		return nil, err
	}

	metrics.PaymentsSettled.WithLabelValues(payment.Provider, "failed").Inc()
	s.logger.Warn("Payment verification unsuccessful",
		zap.String("reference", payment.TransactionRef),
		zap.String("provider", payment.Provider),
		zap.String("reason", verification.Reason))
	return s.settledResult(failed, false, verification.Reason), nil
}

// concurrentOutcome reports what another settle call committed first.
func (s *paymentService) concurrentOutcome(ctx context.Context, reference string) (*SettlementResult, error) {
	payment, err := s.paymentRepo.GetByRefTx(ctx, s.tx.Querier(), reference)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.PaymentStatusFailed {
		return nil, failedConflict(payment)
	}
	metrics.PaymentsSettled.WithLabelValues(payment.Provider, "already_completed").Inc()
	s.logger.Info("Payment already settled by a concurrent caller", zap.String("reference", reference))
	return s.settledResult(payment, true, ""), nil
}

func (s *paymentService) publishSettlementTx(ctx context.Context, q domain.Querier, p *domain.Payment, status domain.PaymentStatus, reason string, at time.Time) error {
	eventType := domain.EventPaymentCompleted
	if status == domain.PaymentStatusFailed {
		eventType = domain.EventPaymentFailed
	}
	msg, err := outbox.NewMessage(domain.AggregatePayment, p.ID, eventType, s.eventsTopic, domain.PaymentSettledEvent{
		PaymentID:      p.ID,
		TransactionRef: p.TransactionRef,
		OrderID:        p.OrderID,
		UserID:         p.UserID,
		AmountUSD:      p.AmountUSD,
		PaymentType:    string(p.Type),
		Provider:       p.Provider,
		Status:         string(status),
		Reason:         reason,
		Timestamp:      at,
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.CreateMessageTx(ctx, q, msg)
}

func (s *paymentService) settledResult(p *domain.Payment, already bool, reason string) *SettlementResult {
	return &SettlementResult{
		Reference:        p.TransactionRef,
		Status:           string(p.Status),
		AlreadyCompleted: already,
		Reason:           reason,
		Payment:          mapPaymentToResponse(p, false),
	}
}

func failedConflict(p *domain.Payment) error {
	return &domain.StateConflictError{
		Entity:  "payment",
		ID:      p.TransactionRef,
		From:    string(p.Status),
		To:      string(domain.PaymentStatusCompleted),
		Message: "payment has already failed, start a new payment",
	}
}

// AcceptWebhook authenticates a provider notification and queues it for the
// settlement worker. Events that do not trigger settlement are acknowledged.
func (s *paymentService) AcceptWebhook(ctx context.Context, providerName string, payload []byte, header http.Header) error {
	name, err := provider.ParseName(providerName)
	if err != nil {
		return err
	}
	parser, err := s.providers.WebhookParser(name)
	if err != nil {
		return err
	}

	event, err := parser.ParseWebhook(payload, header)
	if errors.Is(err, provider.ErrIgnoredEvent) {
		metrics.WebhooksReceived.WithLabelValues(string(name), "ignored").Inc()
		s.logger.Debug("Ignoring webhook event", zap.String("provider", string(name)), zap.Error(err))
		return nil
	}
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(name), "rejected").Inc()
		s.logger.Warn("Rejected webhook", zap.String("provider", string(name)), zap.Error(err))
		return err
	}

	received := domain.WebhookReceivedEvent{
		EventID:    event.ID,
		Provider:   string(event.Provider),
		Type:       event.Type,
		Reference:  event.Reference,
		ReceivedAt: time.Now().UTC(),
	}
	if s.publisher == nil {
		metrics.WebhooksReceived.WithLabelValues(string(name), "accepted").Inc()
		return s.ProcessWebhookEvent(ctx, received)
	}

	body, err := json.Marshal(received)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}
	if err := s.publisher.Produce(ctx, received.Reference, s.webhookTopic, body); err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(name), "error").Inc()
		s.logger.Error("Failed to queue webhook event",
			zap.String("event_id", received.EventID),
			zap.String("reference", received.Reference),
			zap.Error(err))
		return fmt.Errorf("failed to queue webhook event: %w", err)
	}

	metrics.WebhooksReceived.WithLabelValues(string(name), "accepted").Inc()
	s.logger.Info("Webhook accepted",
		zap.String("event_id", received.EventID),
		zap.String("provider", received.Provider),
		zap.String("reference", received.Reference))
	return nil
}

// ProcessWebhookEvent settles the referenced payment once per provider event
// id. Errors that a retry cannot fix mark the inbox row FAILED and return nil
// so the message is not redelivered forever.
func (s *paymentService) ProcessWebhookEvent(ctx context.Context, event domain.WebhookReceivedEvent) error {
	name, err := provider.ParseName(event.Provider)
	if err != nil {
		s.logger.Warn("Dropping webhook event for unknown provider", zap.String("event_id", event.EventID), zap.Error(err))
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	msg := &domain.InboxMessage{
		ID:         event.EventID,
		Provider:   event.Provider,
		Reference:  event.Reference,
		Payload:    payload,
		Status:     domain.InboxStatusProcessing,
		ReceivedAt: event.ReceivedAt,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return s.inboxRepo.CreateMessageTx(ctx, q, msg)
	})
	switch {
	case errors.Is(err, domain.ErrMessageAlreadyProcessed):
		metrics.WebhooksReceived.WithLabelValues(event.Provider, "duplicate").Inc()
		s.logger.Info("Webhook event already processed", zap.String("event_id", event.EventID))
		return nil
	case errors.Is(err, domain.ErrMessageAlreadyPending):
		// A previous attempt died mid-way; settlement itself is idempotent.
		s.logger.Warn("Webhook event still marked in progress, settling again", zap.String("event_id", event.EventID))
	case err != nil:
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	status := domain.InboxStatusProcessed
	result, err := s.Settle(ctx, event.Reference, name)
	if err != nil {
		if !isPermanent(err) {
			s.logger.Error("Failed to settle payment from webhook, will retry",
				zap.String("event_id", event.EventID),
				zap.String("reference", event.Reference),
				zap.Error(err))
			return err
		}
		status = domain.InboxStatusFailed
		s.logger.Warn("Webhook event cannot be settled",
			zap.String("event_id", event.EventID),
			zap.String("reference", event.Reference),
			zap.Error(err))
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return s.inboxRepo.UpdateStatusTx(ctx, q, event.EventID, status)
	})
	if err != nil {
		return fmt.Errorf("failed to update webhook event status: %w", err)
	}
	if result != nil {
		s.logger.Info("Webhook event processed",
			zap.String("event_id", event.EventID),
			zap.String("reference", event.Reference),
			zap.String("payment_status", result.Status),
			zap.Bool("already_completed", result.AlreadyCompleted))
	}
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrStateConflict) ||
		errors.Is(err, domain.ErrForbidden)
}

func (s *paymentService) GetPayments(ctx context.Context, actor domain.Actor, limit, offset int) ([]*PaymentResponse, error) {
	if !actor.IsAdmin() {
		return nil, &domain.ForbiddenError{Reason: "admin role required"}
	}
	payments, err := s.paymentRepo.ListTx(ctx, s.tx.Querier(), limit, offset)
	if err != nil {
		s.logger.Error("Failed to list payments", zap.Error(err))
		return nil, err
	}
	return mapPaymentsToResponse(payments, true), nil
}

func (s *paymentService) GetUserPayments(ctx context.Context, actor domain.Actor) ([]*PaymentResponse, error) {
	payments, err := s.paymentRepo.ListByUserTx(ctx, s.tx.Querier(), actor.ID)
	if err != nil {
		s.logger.Error("Failed to list payments for user", zap.String("user_id", actor.ID), zap.Error(err))
		return nil, err
	}
	return mapPaymentsToResponse(payments, false), nil
}

func (s *paymentService) GetPaymentByID(ctx context.Context, actor domain.Actor, paymentID string) (*PaymentResponse, error) {
	if !util.ValidUUID(paymentID) {
		return nil, domain.NewNotFoundError("payment", paymentID)
	}
	payment, err := s.paymentRepo.GetByIDTx(ctx, s.tx.Querier(), paymentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(payment.UserID) {
		return nil, &domain.ForbiddenError{Reason: "payment belongs to another user"}
	}
	return mapPaymentToResponse(payment, actor.IsAdmin()), nil
}

func (s *paymentService) GetOrderPayments(ctx context.Context, actor domain.Actor, orderID string) ([]*PaymentResponse, error) {
	if !util.ValidUUID(orderID) {
		return nil, domain.NewNotFoundError("order", orderID)
	}
	order, err := s.orderRepo.GetByIDTx(ctx, s.tx.Querier(), orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, &domain.ForbiddenError{Reason: "order belongs to another user"}
	}
	payments, err := s.paymentRepo.ListByOrderTx(ctx, s.tx.Querier(), orderID)
	if err != nil {
		return nil, err
	}
	return mapPaymentsToResponse(payments, actor.IsAdmin()), nil
}
