package pricing_http

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/fees"
	"vehicle-orders/internal/app/pricing"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/auth"
	"vehicle-orders/internal/handler/http/respond"
)

type PricingHandler struct {
	fees   fees.FeeService
	logger *zap.Logger
}

func NewPricingHandler(f fees.FeeService, l *zap.Logger) *PricingHandler {
	return &PricingHandler{fees: f, logger: l}
}

type QuoteResponse struct {
	ChargeTotalUSD     decimal.Decimal       `json:"chargeTotal"`
	LandedCostTotalUSD decimal.Decimal       `json:"landedCostTotal"`
	Breakdown          domain.PriceBreakdown `json:"breakdown"`
}

func (h *PricingHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := decimal.NewFromString(q.Get("price"))
	if err != nil {
		respond.Error(w, h.logger, domain.NewValidationError("invalid query parameter",
			domain.FieldError{Field: "price", Message: "must be a decimal number"}))
		return
	}
	method, err := pricing.ParseShippingMethod(q.Get("shippingMethod"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	settings, err := h.fees.Current(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	// One schedule read serves both totals.
	b, err := pricing.Breakdown(price, method, *settings)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, QuoteResponse{
		ChargeTotalUSD:     b.ChargeTotalUSD,
		LandedCostTotalUSD: b.LandedCostTotalUSD,
		Breakdown:          b,
	})
}

func (h *PricingHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	if !auth.ActorFrom(r).IsAdmin() {
		respond.Error(w, h.logger, &domain.ForbiddenError{Reason: "admin role required"})
		return
	}
	settings, err := h.fees.Current(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, settings)
}

func (h *PricingHandler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r)
	if !actor.IsAdmin() {
		respond.Error(w, h.logger, &domain.ForbiddenError{Reason: "admin role required"})
		return
	}
	var req domain.FeeSettingsPatch
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	settings, err := h.fees.Update(r.Context(), req, actor.ID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, settings)
}
