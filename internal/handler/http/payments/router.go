package payments_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/payments"
)

// RegisterRoutes mounts the payment routes. Provider webhooks authenticate
// with a payload signature and stay outside authenticate.
func RegisterRoutes(r chi.Router, s payments.PaymentService, authenticate func(http.Handler) http.Handler, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhooks/{provider}", handler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/init", handler.InitiatePayment)
			r.Patch("/verify/{reference}", handler.VerifyPayment)
			r.Get("/", handler.GetPayments)
			r.Get("/my-payments", handler.GetMyPayments)
			r.Get("/order/{orderID}", handler.GetOrderPayments)
			r.Get("/{paymentID}", handler.GetPaymentByID)
		})
	})
}
