package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/addresses"
	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
	"github.com/imrishuroy/go-storefront-sync/internal/logger"
	"github.com/imrishuroy/go-storefront-sync/internal/media"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/products"
	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

// EventSender publishes an event for the worker. *eventbus.Client satisfies it.
type EventSender interface {
	Send(ctx context.Context, name string, data interface{}) (eventbus.Event, error)
}

// HandlerConfig groups dependencies for the route handlers.
type HandlerConfig struct {
	Users       *users.Store
	Products    *products.Store
	Orders      *orders.Store
	Addresses   *addresses.Store
	Idempotency *idempotency.Store
	Events      EventSender
	Media       media.Uploader
	Auth        *auth.Verifier

	AllowedOrigins []string
	Now            func() time.Time
}

func (cfg HandlerConfig) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

// NewRouter builds the gin engine with every API route.
func NewRouter(cfg HandlerConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(log))
	r.Use(logger.Recovery(log))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	RegisterProductsRoutes(api, cfg)
	RegisterOrdersRoutes(api, cfg)
	RegisterAddressRoutes(api, cfg)
	RegisterUserRoutes(api, cfg)
	RegisterWebhookRoutes(api, cfg)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", IdempotencyHeader, logger.RequestIDHeader)
	c.ExposeHeaders = []string{logger.RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
