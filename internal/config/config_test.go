package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Events.OrderBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Events.OrderBatchTimeout)
	assert.Equal(t, 48*time.Hour, cfg.Events.IdempotencyTTL)
	assert.Equal(t, 15*time.Minute, cfg.Events.IdempotencyStaleAfter)
	assert.Equal(t, "quickcart", cfg.App.ID)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "seller", cfg.Auth.SellerRole)
	assert.Equal(t, []string{"*"}, cfg.App.CORSOrigins)
	assert.Equal(t, []string{"users", "products", "orders", "addresses", "idempotency"}, cfg.Tables.All())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ORDERS_TABLE", "orders-prod")
	t.Setenv("ORDER_BATCH_SIZE", "10")
	t.Setenv("ORDER_BATCH_TIMEOUT", "250ms")
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("APP_ENV", "production")
	t.Setenv("EVENTS_QUEUE_URL", "https://sqs.local/events")
	t.Setenv("CORS_ORIGINS", "https://shop.example.com, http://localhost:3000")
	t.Setenv("APP_ID", "quickcart-staging")
	t.Setenv("IDEMPOTENCY_STALE_AFTER", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "orders-prod", cfg.Tables.Orders)
	assert.Equal(t, 10, cfg.Events.OrderBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.OrderBatchTimeout)
	assert.True(t, cfg.App.RunLocal)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://sqs.local/events", cfg.Events.QueueURL)
	assert.Equal(t, []string{"https://shop.example.com", "http://localhost:3000"}, cfg.App.CORSOrigins)
	assert.Equal(t, "quickcart-staging", cfg.App.ID)
	assert.Equal(t, 2*time.Minute, cfg.Events.IdempotencyStaleAfter)
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("ORDER_BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order batch size")
}
