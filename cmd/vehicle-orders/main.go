package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"vehicle-orders/internal/app/fees"
	"vehicle-orders/internal/app/orders"
	"vehicle-orders/internal/app/payments"
	"vehicle-orders/internal/app/pricing"
	"vehicle-orders/internal/config"
	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/auth"
	kafka_handler "vehicle-orders/internal/handler/kafka"
	"vehicle-orders/internal/infrastructure/cache"
	"vehicle-orders/internal/infrastructure/database"
	"vehicle-orders/internal/infrastructure/fx"
	kafka_infra "vehicle-orders/internal/infrastructure/kafka"
	"vehicle-orders/internal/outbox"
	"vehicle-orders/internal/provider"
	paystack_provider "vehicle-orders/internal/provider/paystack"
	stripe_provider "vehicle-orders/internal/provider/stripe"
	"vehicle-orders/internal/repository/activity_repo"
	postgres_activity_repo "vehicle-orders/internal/repository/activity_repo/postgres"
	"vehicle-orders/internal/repository/catalog_repo"
	postgres_catalog_repo "vehicle-orders/internal/repository/catalog_repo/postgres"
	"vehicle-orders/internal/repository/fees_repo"
	postgres_fees_repo "vehicle-orders/internal/repository/fees_repo/postgres"
	"vehicle-orders/internal/repository/inbox_repo"
	postgres_inbox_repo "vehicle-orders/internal/repository/inbox_repo/postgres"
	"vehicle-orders/internal/repository/memory"
	"vehicle-orders/internal/repository/order_repo"
	postgres_order_repo "vehicle-orders/internal/repository/order_repo/postgres"
	"vehicle-orders/internal/repository/outbox_repo"
	postgres_outbox_repo "vehicle-orders/internal/repository/outbox_repo/postgres"
	"vehicle-orders/internal/repository/payments_repo"
	postgres_payments_repo "vehicle-orders/internal/repository/payments_repo/postgres"
	"vehicle-orders/internal/router"
)

type storage struct {
	tx        domain.Transactor
	orders    order_repo.OrderRepository
	payments  payments_repo.PaymentRepository
	outbox    outbox_repo.OutboxRepository
	inbox     inbox_repo.InboxRepository
	activity  activity_repo.ActivityRepository
	fees      fees_repo.FeeRepository
	vehicles  catalog_repo.VehicleCatalog
	addresses catalog_repo.AddressBook
	// durable is false for the in-memory driver, which also runs without Kafka.
	durable bool
	close   func()
}

func openPostgres(cfg *config.Config, logger *zap.Logger) (*storage, error) {
	logger.Info("Waiting for database to be available...")
	db, err := database.ConnectWithRetry(database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}, cfg.DBConfig.MaxRetries, cfg.DBConfig.RetryDelay, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		logger.Info("Running database migrations...")
		m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create migrate instance: %w", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info("Database migrations completed successfully (or no new migrations).")
	} else {
		logger.Info("Skipping database migrations, RUN_MIGRATIONS is false")
	}

	tx := database.NewTransactor(db, logger.With(zap.String("component", "Transactor")))
	catalog := postgres_catalog_repo.NewCatalogReader(db)
	return &storage{
		tx:        tx,
		orders:    postgres_order_repo.NewOrderRepository(),
		payments:  postgres_payments_repo.NewPaymentRepository(),
		outbox:    postgres_outbox_repo.NewOutboxRepository(),
		inbox:     postgres_inbox_repo.NewInboxRepository(),
		activity:  postgres_activity_repo.NewActivityRepository(),
		fees:      postgres_fees_repo.NewFeeRepository(),
		vehicles:  catalog,
		addresses: catalog,
		durable:   true,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Error("Error closing database connection", zap.Error(err))
			} else {
				logger.Info("Database connection closed.")
			}
		},
	}, nil
}

func openMemory() *storage {
	store := memory.NewStore()
	return &storage{
		tx:        store,
		orders:    store.Orders(),
		payments:  store.Payments(),
		outbox:    store.Outbox(),
		inbox:     store.Inbox(),
		activity:  store.ActivityLog(),
		fees:      store.Fees(),
		vehicles:  store,
		addresses: store,
		close:     func() {},
	}
}

// openCache falls back to no caching when redis is unreachable; both caches
// are read-through, so the service stays correct without them.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, func()) {
	c := cache.NewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		logger.Warn("Redis unavailable, running without cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = c.Close()
		return cache.Noop{}, func() {}
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return c, func() {
		if err := c.Close(); err != nil {
			logger.Error("Error closing Redis client", zap.Error(err))
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Vehicle Orders service starting...", zap.String("storage_driver", cfg.StorageDriver))

	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *storage
	if cfg.StorageDriver == config.StorageDriverMemory {
		appLogger.Warn("Using in-memory storage; data is lost on restart and Kafka is disabled")
		store = openMemory()
	} else {
		store, err = openPostgres(cfg, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to open storage", zap.Error(err))
		}
	}
	defer store.close()

	cacheStore, closeCache := openCache(ctx, cfg, appLogger)
	defer closeCache()

	var producer kafka_infra.Producer
	if store.durable {
		topicsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := kafka_infra.EnsureTopics(topicsCtx, cfg.GetKafkaBrokers(),
			[]string{cfg.KafkaOrderEventsTopic, cfg.KafkaWebhookTopic}, appLogger)
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}
		producer = kafka_infra.NewProducer(cfg.GetKafkaBrokers(), appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() {
			if err := producer.Close(); err != nil {
				appLogger.Error("Error closing Kafka producer", zap.Error(err))
			} else {
				appLogger.Info("Kafka producer closed.")
			}
		}()
	}

	feeService := fees.NewFeeService(store.tx, store.fees, store.activity, cacheStore, cfg.FeeCacheTTL,
		appLogger.With(zap.String("component", "FeeService")))
	calculator := pricing.NewCalculator(feeService)

	orderService := orders.NewOrderService(store.tx, store.orders, store.outbox, store.activity, store.vehicles, store.addresses,
		calculator, cfg.KafkaOrderEventsTopic, appLogger.With(zap.String("component", "OrderService")))

	rates := fx.NewClient(fx.Options{
		BaseURL:           cfg.FXBaseURL,
		Timeout:           cfg.FXRequestTimeout,
		CacheTTL:          cfg.FXCacheTTL,
		RequestsPerSecond: cfg.FXRequestsPerSecond,
	}, cacheStore, appLogger.With(zap.String("component", "FXClient")))

	stripeAdapter := stripe_provider.New(stripe_provider.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	}, appLogger.With(zap.String("component", "StripeAdapter")))
	paystackAdapter := paystack_provider.New(paystack_provider.Config{
		SecretKey:   cfg.PaystackSecretKey,
		CallbackURL: cfg.PaystackCallbackURL,
		Currency:    cfg.PaystackCurrency,
	}, rates, appLogger.With(zap.String("component", "PaystackAdapter")))
	for _, a := range []provider.Adapter{stripeAdapter, paystackAdapter} {
		if !a.Enabled() {
			appLogger.Warn("Payment provider is not configured", zap.String("provider", string(a.Name())))
		}
	}

	// Without a producer, webhook intake settles inline.
	paymentService := payments.NewPaymentService(store.tx, store.payments, store.orders, store.outbox, store.inbox, orderService,
		provider.NewRegistry(stripeAdapter, paystackAdapter), feeService, producer,
		cfg.KafkaOrderEventsTopic, cfg.KafkaWebhookTopic, appLogger.With(zap.String("component", "PaymentService")))
	appLogger.Info("Services initialized.")

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router.NewRouter(cfg, router.Services{
			Orders:   orderService,
			Payments: paymentService,
			Fees:     feeService,
		}, auth.NewVerifier(cfg.JWTSecret), appLogger.With(zap.String("component", "HTTPHandler"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
			return err
		}
		appLogger.Info("HTTP server gracefully shut down.")
		return nil
	})

	if producer != nil {
		outboxProcessor := outbox.NewProcessor(store.tx, store.outbox, producer,
			cfg.OutboxPollInterval, cfg.OutboxPollTimeout, cfg.OutboxBatchSize,
			appLogger.With(zap.String("component", "OutboxProcessor")))
		g.Go(func() error {
			return outboxProcessor.Run(gctx)
		})

		webhookConsumer := kafka_infra.NewConsumer(cfg.GetKafkaBrokers(), cfg.KafkaConsumerGroup, cfg.KafkaWebhookTopic,
			appLogger.With(zap.String("component", "WebhookConsumer")))
		webhookHandler := kafka_handler.WebhookMessageHandler(paymentService,
			appLogger.With(zap.String("component", "WebhookHandler")))
		g.Go(func() error {
			defer func() {
				if err := webhookConsumer.Close(); err != nil {
					appLogger.Error("Error closing webhook consumer", zap.Error(err))
				}
			}()
			return webhookConsumer.Start(gctx, webhookHandler)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Application stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Application gracefully shut down.")
}
