package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
)

func webhookRequest(delivery string, body interface{}) request {
	r := request{method: http.MethodPost, path: "/api/webhooks/clerk", body: jsonBody(body)}
	if delivery != "" {
		r.headers = map[string]string{DeliveryIDHeader: delivery}
	}
	return r
}

func TestWebhook_PublishesUserEvent(t *testing.T) {
	f := newFixture(t)
	payload := map[string]interface{}{
		"type": "user.created",
		"data": map[string]interface{}{"id": "user_1", "first_name": "Ada"},
	}

	out := f.do(t, webhookRequest("msg_1", payload))
	require.Equal(t, true, out["success"], out)

	evs := f.sentEvents(t)
	require.Len(t, evs, 1)
	assert.Equal(t, eventbus.UserCreated, evs[0].Name)
	assert.JSONEq(t, `{"id":"user_1","first_name":"Ada"}`, string(evs[0].Data))

	out = f.do(t, webhookRequest("msg_1", payload))
	assert.Equal(t, map[string]interface{}{"success": true, "message": "Event already received"}, out)
	assert.Len(t, f.sqs.Sent, 1, "redelivery is not republished")
}

func TestWebhook_IgnoresOtherTypes(t *testing.T) {
	f := newFixture(t)
	out := f.do(t, webhookRequest("msg_2", map[string]interface{}{"type": "session.created", "data": map[string]interface{}{}}))
	assert.Equal(t, map[string]interface{}{"success": true, "message": "Event ignored"}, out)
	assert.Empty(t, f.sqs.Sent)
}

func TestWebhook_PublishFailureAsksForRedelivery(t *testing.T) {
	f := newFixture(t)
	payload := map[string]interface{}{"type": "user.deleted", "data": map[string]interface{}{"id": "user_1"}}

	f.sqs.SendErr = errors.New("queue down")
	w := f.send(t, webhookRequest("msg_3", payload))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	// the provider's redelivery goes through once the queue is back
	f.sqs.SendErr = nil
	out := f.do(t, webhookRequest("msg_3", payload))
	assert.Equal(t, true, out["success"], out)
	assert.Len(t, f.sqs.Sent, 1)
}

func TestWebhook_StoreFailureAsksForRedelivery(t *testing.T) {
	f := newFixture(t)
	f.dynamo.Errs["PutItem"] = errors.New("throttled")

	w := f.send(t, webhookRequest("msg_4", map[string]interface{}{"type": "user.created", "data": map[string]interface{}{"id": "user_1"}}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, f.sqs.Sent)
}

func TestWebhook_UnfinishedDeliveryIsNotAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := idempotency.Key(idempotency.ScopeWebhook, "msg_5")
	created, err := f.cfg.Idempotency.CreateIfNotExists(ctx, key, "")
	require.NoError(t, err)
	require.True(t, created)

	w := f.send(t, webhookRequest("msg_5", map[string]interface{}{"type": "user.created", "data": map[string]interface{}{"id": "user_1"}}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
	assert.Empty(t, f.sqs.Sent)
}

func TestWebhook_AbandonedDeliveryIsTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Idempotency.WithStaleAfter(time.Nanosecond)
	_, err := f.cfg.Idempotency.CreateIfNotExists(ctx, idempotency.Key(idempotency.ScopeWebhook, "msg_6"), "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	out := f.do(t, webhookRequest("msg_6", map[string]interface{}{"type": "user.created", "data": map[string]interface{}{"id": "user_1"}}))
	assert.Equal(t, "Event received", out["message"])
	assert.Len(t, f.sqs.Sent, 1)
}
