package payments_http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/payments"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/auth"
	"vehicle-orders/internal/handler/http/respond"
	"vehicle-orders/internal/provider"
)

const maxWebhookBytes = 1 << 20

type PaymentHandler struct {
	service payments.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(s payments.PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req payments.InitiatePaymentRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("Invalid request body for InitiatePayment", zap.Error(err))
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.Initiate(r.Context(), auth.ActorFrom(r), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	res, err := h.service.Verify(r.Context(), auth.ActorFrom(r), reference, r.URL.Query().Get("provider"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Webhook acknowledges a provider notification once its signature checks out
// and it has been queued. Anything non-2xx makes the provider redeliver.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.String("provider", name), zap.Error(err))
		respond.WriteError(w, http.StatusBadRequest, respond.ErrorBody{Code: respond.CodeValidation, Message: "unreadable body"})
		return
	}

	if err := h.service.AcceptWebhook(r.Context(), name, payload, r.Header); err != nil {
		if errors.Is(err, provider.ErrInvalidSignature) {
			respond.WriteError(w, http.StatusUnauthorized, respond.ErrorBody{Code: respond.CodeUnauthorized, Message: "invalid webhook signature"})
			return
		}
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	res, err := h.service.GetPayments(r.Context(), auth.ActorFrom(r), limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) GetMyPayments(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetUserPayments(r.Context(), auth.ActorFrom(r))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) GetPaymentByID(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetPaymentByID(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "paymentID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) GetOrderPayments(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetOrderPayments(r.Context(), auth.ActorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
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
