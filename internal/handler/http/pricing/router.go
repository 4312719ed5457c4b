package pricing_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/fees"
)

// RegisterRoutes mounts the public quote route and the authenticated fee
// administration routes.
func RegisterRoutes(r chi.Router, f fees.FeeService, authenticate func(http.Handler) http.Handler, l *zap.Logger) {
	handler := NewPricingHandler(f, l.With(zap.String("component", "PricingHTTPHandler")))

	r.Get("/pricing/quote", handler.GetQuote)

	r.Route("/admin/fees", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/", handler.GetFees)
		r.Put("/", handler.UpdateFees)
	})
}
