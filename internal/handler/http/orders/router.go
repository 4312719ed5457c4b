package orders_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/orders"
)

// RegisterRoutes mounts the order routes. r must already authenticate.
func RegisterRoutes(r chi.Router, s orders.OrderService, l *zap.Logger) {
	handler := NewOrderHandler(s, l.With(zap.String("component", "OrderHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/my-orders", handler.GetMyOrders)
		r.Get("/request/{requestNumber}", handler.GetOrderByRequestNumber)
		r.Put("/bulk/status", handler.BulkUpdateStatus)

		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", handler.GetOrder)
			r.Patch("/", handler.UpdateDetails)
			r.Delete("/", handler.DeleteOrder)
			r.Put("/status", handler.UpdateStatus)
			r.Post("/cancel", handler.Cancel)
			r.Post("/request-refund", handler.RequestRefund)
			r.Post("/quote-response", handler.RespondToQuote)
			r.Put("/tags", handler.AssignTags)
			r.Put("/priority", handler.SetPriority)
			r.Get("/notes", handler.GetNotes)
			r.Post("/notes", handler.AddNote)
			r.Get("/history", handler.GetHistory)
		})
	})
}
