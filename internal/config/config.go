package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig
	Log     LogConfig
	AWS     AWSConfig
	Tables  TablesConfig
	Events  EventsConfig
	Media   MediaConfig
	Auth    AuthConfig
	Metrics MetricsConfig
}

type AppConfig struct {
	ID          string // source id stamped on published events
	Env         string
	Port        string
	RunLocal    bool
	CORSOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

type AWSConfig struct {
	Region           string
	EndpointOverride string
}

// TablesConfig names one DynamoDB table per collection.
type TablesConfig struct {
	Users       string
	Products    string
	Orders      string
	Addresses   string
	Idempotency string
}

// All returns every configured table name.
func (t TablesConfig) All() []string {
	return []string{t.Users, t.Products, t.Orders, t.Addresses, t.Idempotency}
}

// EventsConfig holds event delivery and batching settings
type EventsConfig struct {
	QueueURL          string
	OrderBatchSize    int
	OrderBatchTimeout time.Duration
	PollWait          time.Duration
	IdempotencyTTL    time.Duration

	// IdempotencyStaleAfter is how long an unfinished attempt blocks retries.
	IdempotencyStaleAfter time.Duration
}

type MediaConfig struct {
	Bucket  string
	BaseURL string
}

// AuthConfig holds session token verification settings. PublicKey (PEM,
// RS256) takes precedence over Secret (HS256).
type AuthConfig struct {
	PublicKey  string
	Secret     string
	SellerRole string
}

type MetricsConfig struct {
	Namespace string
}

var envBindings = map[string]string{
	"app.id":                     "APP_ID",
	"app.env":                    "APP_ENV",
	"app.port":                   "PORT",
	"app.run_local":              "RUN_LOCAL",
	"app.cors_origins":           "CORS_ORIGINS",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
	"aws.region":                 "AWS_REGION",
	"aws.endpoint_override":      "AWS_ENDPOINT_OVERRIDE",
	"tables.users":               "USERS_TABLE",
	"tables.products":            "PRODUCTS_TABLE",
	"tables.orders":              "ORDERS_TABLE",
	"tables.addresses":           "ADDRESSES_TABLE",
	"tables.idempotency":         "IDEMPOTENCY_TABLE",
	"events.queue_url":           "EVENTS_QUEUE_URL",
	"events.order_batch_size":    "ORDER_BATCH_SIZE",
	"events.order_batch_timeout": "ORDER_BATCH_TIMEOUT",
	"events.poll_wait":           "EVENTS_POLL_WAIT",
	"events.idempotency_ttl":     "IDEMPOTENCY_TTL",
	"events.idempotency_stale":   "IDEMPOTENCY_STALE_AFTER",
	"media.bucket":               "MEDIA_BUCKET",
	"media.base_url":             "MEDIA_BASE_URL",
	"auth.public_key":            "JWT_PUBLIC_KEY",
	"auth.secret":                "JWT_SECRET",
	"auth.seller_role":           "SELLER_ROLE",
	"metrics.namespace":          "METRICS_NAMESPACE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.id", "quickcart")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.run_local", false)
	v.SetDefault("app.cors_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("tables.users", "users")
	v.SetDefault("tables.products", "products")
	v.SetDefault("tables.orders", "orders")
	v.SetDefault("tables.addresses", "addresses")
	v.SetDefault("tables.idempotency", "idempotency")
	v.SetDefault("events.order_batch_size", 5)
	v.SetDefault("events.order_batch_timeout", 5*time.Second)
	v.SetDefault("events.poll_wait", 20*time.Second)
	v.SetDefault("events.idempotency_ttl", 48*time.Hour)
	v.SetDefault("events.idempotency_stale", 15*time.Minute)
	v.SetDefault("auth.seller_role", "seller")
	v.SetDefault("metrics.namespace", "StorefrontSync")
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			ID:          v.GetString("app.id"),
			Env:         v.GetString("app.env"),
			Port:        v.GetString("app.port"),
			RunLocal:    v.GetBool("app.run_local"),
			CORSOrigins: splitList(v.GetString("app.cors_origins")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		AWS: AWSConfig{
			Region:           v.GetString("aws.region"),
			EndpointOverride: v.GetString("aws.endpoint_override"),
		},
		Tables: TablesConfig{
			Users:       v.GetString("tables.users"),
			Products:    v.GetString("tables.products"),
			Orders:      v.GetString("tables.orders"),
			Addresses:   v.GetString("tables.addresses"),
			Idempotency: v.GetString("tables.idempotency"),
		},
		Events: EventsConfig{
			QueueURL:          v.GetString("events.queue_url"),
			OrderBatchSize:    v.GetInt("events.order_batch_size"),
			OrderBatchTimeout: v.GetDuration("events.order_batch_timeout"),
			PollWait:          v.GetDuration("events.poll_wait"),
			IdempotencyTTL:    v.GetDuration("events.idempotency_ttl"),

			IdempotencyStaleAfter: v.GetDuration("events.idempotency_stale"),
		},
		Media: MediaConfig{
			Bucket:  v.GetString("media.bucket"),
			BaseURL: v.GetString("media.base_url"),
		},
		Auth: AuthConfig{
			PublicKey:  v.GetString("auth.public_key"),
			Secret:     v.GetString("auth.secret"),
			SellerRole: v.GetString("auth.seller_role"),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("metrics.namespace"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	for _, name := range c.Tables.All() {
		if name == "" {
			return errors.New("all table names must be set")
		}
	}
	if c.Events.OrderBatchSize <= 0 {
		return fmt.Errorf("order batch size must be positive, got %d", c.Events.OrderBatchSize)
	}
	if c.Events.OrderBatchTimeout <= 0 {
		return fmt.Errorf("order batch timeout must be positive, got %s", c.Events.OrderBatchTimeout)
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
