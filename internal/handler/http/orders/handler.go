package orders_http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/orders"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/auth"
	"vehicle-orders/internal/handler/http/respond"
)

type OrderHandler struct {
	service orders.OrderService
	logger  *zap.Logger
}

func NewOrderHandler(s orders.OrderService, l *zap.Logger) *OrderHandler {
	return &OrderHandler{service: s, logger: l}
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type BulkUpdateStatusRequest struct {
	OrderIDs []string `json:"orderIds"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type QuoteResponseRequest struct {
	Accept bool `json:"accept"`
}

type TagsRequest struct {
	Tags []string `json:"tags"`
}

type PriorityRequest struct {
	Priority string `json:"priority"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("Invalid request body for CreateOrder", zap.Error(err))
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.CreateOrder(r.Context(), auth.ActorFrom(r), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetOrder(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) GetOrderByRequestNumber(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetOrderByRequestNumber(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "requestNumber"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetMyOrders(r.Context(), auth.ActorFrom(r))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Status: domain.OrderStatus(q.Get("status")),
		UserID: q.Get("userId"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.ListOrders(r.Context(), auth.ActorFrom(r), filter)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.UpdateStatus(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), target, req.Reason)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateStatusRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.BulkUpdateStatus(r.Context(), auth.ActorFrom(r), req.OrderIDs, target, req.Reason)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.Cancel(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.RequestRefund(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) RespondToQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteResponseRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.RespondToQuote(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), req.Accept)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req orders.UpdateDetailsRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.UpdateDetails(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) AssignTags(w http.ResponseWriter, r *http.Request) {
	var req TagsRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.AssignTags(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), req.Tags)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.SetPriority(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), domain.Priority(req.Priority))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.AddAdminNote(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), req.Note)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

func (h *OrderHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetNotes(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetHistory(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if err := h.service.DeleteOrder(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"), hard); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError("invalid query parameter", domain.FieldError{Field: name, Message: "must be a non-negative integer"})
	}
	return n, nil
}
