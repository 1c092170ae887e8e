package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
	"github.com/imrishuroy/go-storefront-sync/internal/logger"
)

// DeliveryIDHeader is set by the identity provider's webhook sender and is
// stable across redeliveries of the same message.
const DeliveryIDHeader = "svix-id"

// webhookEvents maps provider event types to the events they are published as.
var webhookEvents = map[string]string{
	"user.created": eventbus.UserCreated,
	"user.updated": eventbus.UserUpdated,
	"user.deleted": eventbus.UserDeleted,
}

type webhookPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RegisterWebhookRoutes registers the identity-provider webhook. Signature
// checks happen in front of the API. Unlike the REST routes, a delivery
// that was not published answers non-2xx so the provider retries it.
func RegisterWebhookRoutes(r gin.IRouter, cfg HandlerConfig) {
	r.POST("/webhooks/clerk", handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		var payload webhookPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			return Err{Message: "Invalid request body"}
		}
		name, ok := webhookEvents[payload.Type]
		if !ok {
			log.Info("webhook ignored", zap.String("type", payload.Type))
			return Ok{Message: "Event ignored"}
		}

		idemKey := ""
		if delivery := c.GetHeader(DeliveryIDHeader); delivery != "" && cfg.Idempotency != nil {
			idemKey = idempotency.Key(idempotency.ScopeWebhook, delivery)
			rec, err := cfg.Idempotency.Begin(ctx, idemKey, "")
			if err != nil {
				return retryLater(c, err)
			}
			if rec != nil {
				log.Info("duplicate webhook delivery", zap.String("delivery", delivery), zap.String("status", rec.Status))
				if rec.Status == idempotency.StatusDone {
					return Ok{Message: "Event already received"}
				}
				return Err{Message: "Event is being processed", Status: http.StatusConflict}
			}
		}

		ev, err := cfg.Events.Send(ctx, name, payload.Data)
		if err != nil {
			if idemKey != "" {
				if mErr := cfg.Idempotency.MarkFailed(ctx, idemKey, err.Error()); mErr != nil {
					log.Warn("idempotency mark failed", zap.Error(mErr))
				}
			}
			return retryLater(c, err)
		}
		if idemKey != "" {
			if err := cfg.Idempotency.MarkDone(ctx, idemKey, ev.ID, http.StatusOK); err != nil {
				log.Warn("idempotency mark done", zap.Error(err))
			}
		}
		return Ok{Message: "Event received", Key: "eventId", Data: ev.ID}
	}))
}
