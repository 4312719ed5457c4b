package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	HTTPPort           int
	HTTPRequestTimeout time.Duration
	CORSAllowedOrigins []string

	StorageDriver string

	DBConfig struct {
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		SSLMode    string
		MaxRetries int
		RetryDelay time.Duration
	}
	MigrationsPath string
	RunMigrations  bool

	KafkaBrokerURL        string
	KafkaOrderEventsTopic string
	KafkaWebhookTopic     string
	KafkaConsumerGroup    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string

	PaystackSecretKey   string
	PaystackCallbackURL string
	PaystackCurrency    string

	FXBaseURL           string
	FXCacheTTL          time.Duration
	FXRequestTimeout    time.Duration
	FXRequestsPerSecond float64

	FeeCacheTTL time.Duration

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
	OutboxBatchSize    int
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	cfg.HTTPRequestTimeout = getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigins = splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"))

	cfg.StorageDriver = getEnvOrDefault("STORAGE_DRIVER", StorageDriverPostgres)

	cfg.DBConfig.Host = getEnvOrDefault("ORDERS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("ORDERS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("ORDERS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("ORDERS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("ORDERS_DB_NAME", "vehicle_orders")
	cfg.DBConfig.SSLMode = getEnvOrDefault("ORDERS_DB_SSLMODE", "disable")
	cfg.DBConfig.MaxRetries = getEnvAsInt("ORDERS_DB_MAX_RETRIES", 10)
	cfg.DBConfig.RetryDelay = getEnvAsDuration("ORDERS_DB_RETRY_DELAY", 5*time.Second)
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")
	cfg.RunMigrations = getEnvAsBool("RUN_MIGRATIONS", true)

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaOrderEventsTopic = getEnvOrDefault("KAFKA_ORDER_EVENTS_TOPIC", "vehicle_order_events")
	cfg.KafkaWebhookTopic = getEnvOrDefault("KAFKA_WEBHOOK_TOPIC", "payment_webhooks")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "vehicle-orders-webhooks")

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", "")

	cfg.StripeSecretKey = getEnvOrDefault("STRIPE_SECRET_KEY", "")
	cfg.StripeWebhookSecret = getEnvOrDefault("STRIPE_WEBHOOK_SECRET", "")

	cfg.PaystackSecretKey = getEnvOrDefault("PAYSTACK_SECRET_KEY", "")
	cfg.PaystackCallbackURL = getEnvOrDefault("PAYSTACK_CALLBACK_URL", "")
	cfg.PaystackCurrency = getEnvOrDefault("PAYSTACK_CURRENCY", "NGN")

	cfg.FXBaseURL = getEnvOrDefault("FX_BASE_URL", "https://open.er-api.com/v6")
	cfg.FXCacheTTL = getEnvAsDuration("FX_CACHE_TTL", 30*time.Minute)
	cfg.FXRequestTimeout = getEnvAsDuration("FX_REQUEST_TIMEOUT", 5*time.Second)
	cfg.FXRequestsPerSecond = getEnvAsFloat("FX_REQUESTS_PER_SECOND", 2)

	cfg.FeeCacheTTL = getEnvAsDuration("FEE_CACHE_TTL", 5*time.Minute)

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.FXCacheTTL <= 0 || c.FeeCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnvOrDefault(key, strconv.FormatFloat(defaultValue, 'f', -1, 64))
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
