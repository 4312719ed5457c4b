package orders

import (
	"encoding/json"
	"time"

	"vehicle-orders/internal/domain"
)

type CreateOrderRequest struct {
	VehicleID      string `json:"vehicleId"`
	ShippingMethod string `json:"shippingMethod"`
	Notes          string `json:"notes"`
}

// UpdateDetailsRequest carries owner edits. Nil fields are left unchanged.
type UpdateDetailsRequest struct {
	Destination *domain.Destination `json:"destination"`
	Notes       *string             `json:"notes"`
}

type BulkFailure struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// BulkUpdateResult reports what happened to each id once the batch passed
// validation. Unchanged ids were already at the target.
type BulkUpdateResult struct {
	Updated   []string      `json:"updated"`
	Unchanged []string      `json:"unchanged"`
	Failed    []BulkFailure `json:"failed,omitempty"`
}

type OrderResponse struct {
	ID                 string             `json:"id"`
	RequestNumber      string             `json:"requestNumber"`
	UserID             string             `json:"userId"`
	VehicleID          string             `json:"vehicleId,omitempty"`
	VehicleSnapshot    json.RawMessage    `json:"vehicleSnapshot"`
	PaymentBreakdown   json.RawMessage    `json:"paymentBreakdown"`
	ShippingMethod     string             `json:"shippingMethod"`
	Destination        domain.Destination `json:"destination"`
	CustomerNotes      string             `json:"customerNotes"`
	Tags               []string           `json:"tags"`
	Priority           string             `json:"priority"`
	Status             string             `json:"status"`
	NextStatuses       []string           `json:"nextStatuses"`
	Locked             bool               `json:"locked"`
	Cancellable        bool               `json:"cancellable"`
	StatusChangedAt    time.Time          `json:"statusChangedAt"`
	StatusChangedBy    string             `json:"statusChangedBy,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	CancelledBy        string             `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	RefundRequested    bool               `json:"refundRequested"`
	RefundReason       string             `json:"refundReason,omitempty"`
	RefundRequestedAt  *time.Time         `json:"refundRequestedAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

type StatusChangeResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapOrderToResponse(order *domain.Order) *OrderResponse {
	next := order.Status.NextStatuses()
	nextStatuses := make([]string, len(next))
	for i, s := range next {
		nextStatuses[i] = string(s)
	}
	tags := order.Tags
	if tags == nil {
		tags = []string{}
	}
	return &OrderResponse{
		ID:                 order.ID,
		RequestNumber:      order.RequestNumber,
		UserID:             order.UserID,
		VehicleID:          order.VehicleID,
		VehicleSnapshot:    order.VehicleSnapshot,
		PaymentBreakdown:   order.PaymentBreakdown,
		ShippingMethod:     string(order.ShippingMethod),
		Destination:        order.Destination,
		CustomerNotes:      order.CustomerNotes,
		Tags:               tags,
		Priority:           string(order.Priority),
		Status:             string(order.Status),
		NextStatuses:       nextStatuses,
		Locked:             order.Status.IsLocked(),
		Cancellable:        order.Status.IsCancellable(),
		StatusChangedAt:    order.StatusChangedAt,
		StatusChangedBy:    order.StatusChangedBy,
		CancellationReason: order.CancellationReason,
		CancelledBy:        order.CancelledBy,
		CancelledAt:        order.CancelledAt,
		RefundRequested:    order.RefundRequested,
		RefundReason:       order.RefundReason,
		RefundRequestedAt:  order.RefundRequestedAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func mapOrdersToResponse(orders []*domain.Order) []*OrderResponse {
	responses := make([]*OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = mapOrderToResponse(order)
	}
	return responses
}

func mapHistoryToResponse(history []domain.StatusChange) []StatusChangeResponse {
	out := make([]StatusChangeResponse, len(history))
	for i, c := range history {
		out[i] = StatusChangeResponse{From: string(c.From), To: string(c.To), ActorID: c.ActorID, Reason: c.Reason, CreatedAt: c.CreatedAt}
	}
	return out
}
