package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/fees"
	"vehicle-orders/internal/app/orders"
	"vehicle-orders/internal/app/payments"
	"vehicle-orders/internal/config"
	"vehicle-orders/internal/handler/http/auth"
	orders_http "vehicle-orders/internal/handler/http/orders"
	payments_http "vehicle-orders/internal/handler/http/payments"
	pricing_http "vehicle-orders/internal/handler/http/pricing"
	"vehicle-orders/internal/metrics"
)

type Services struct {
	Orders   orders.OrderService
	Payments payments.PaymentService
	Fees     fees.FeeService
}

func NewRouter(cfg *config.Config, services Services, verifier *auth.Verifier, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.HTTPRequestTimeout))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Vehicle orders service is healthy!"))
	})
	r.Handle("/metrics", metrics.Handler())

	authenticate := auth.Middleware(verifier, logger.With(zap.String("component", "AuthMiddleware")))

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		orders_http.RegisterRoutes(r, services.Orders, logger)
	})
	payments_http.RegisterRoutes(r, services.Payments, authenticate, logger)
	pricing_http.RegisterRoutes(r, services.Fees, authenticate, logger)

	return r
}
