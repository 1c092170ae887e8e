package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
	"github.com/imrishuroy/go-storefront-sync/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

type syncFixture struct {
	client *Client
	dynamo *awstest.FakeDynamo
	cw     *awstest.FakeCloudWatch
	orders *orders.Store
}

func newSyncFixture(t *testing.T, batch Batch) *syncFixture {
	t.Helper()
	fake := awstest.NewFakeDynamo(map[string]string{
		"users":  "user_id",
		"orders": "order_id",
	})
	cw := &awstest.FakeCloudWatch{}
	orderStore := orders.NewStore(fake, "orders")
	logger := zaptest.NewLogger(t)

	c := NewClient("test", nil, logger)
	require.NoError(t, c.Register(Functions(Deps{
		Users:      users.NewStore(fake, "users"),
		Orders:     orderStore,
		Metrics:    aws.NewMetrics(cw, "Test"),
		Logger:     logger,
		OrderBatch: batch,
	})...))
	t.Cleanup(c.Close)
	return &syncFixture{client: c, dynamo: fake, cw: cw, orders: orderStore}
}

func orderEvent(id, user string) Event {
	raw, _ := json.Marshal(OrderCreatedData{
		UserID:  user,
		Items:   []orders.Item{{Product: "p1", Quantity: 2}},
		Amount:  102,
		Address: "a1",
		Date:    1700000000000,
	})
	return Event{ID: id, Name: OrderCreated, Data: raw, TS: 1700000000001}
}

func dispatchAll(f *syncFixture, evs []Event) ([]Result, []error) {
	res := make([]Result, len(evs))
	errs := make([]error, len(evs))
	var wg sync.WaitGroup
	for i, ev := range evs {
		wg.Add(1)
		go func(i int, ev Event) {
			defer wg.Done()
			res[i], errs[i] = f.client.Dispatch(context.Background(), ev)
		}(i, ev)
	}
	wg.Wait()
	return res, errs
}

func TestFunctions_Registered(t *testing.T) {
	f := newSyncFixture(t, Batch{})
	assert.Equal(t, map[string]string{
		UserCreated:  FnSyncUserCreation,
		UserUpdated:  FnSyncUserUpdation,
		UserDeleted:  FnSyncUserDeletion,
		OrderCreated: FnCreateUserOrder,
	}, f.client.Functions())
}

func TestCreateUserOrder_FullBatchFlushesAtOnce(t *testing.T) {
	f := newSyncFixture(t, Batch{MaxSize: 5, Timeout: time.Hour})
	evs := make([]Event, 5)
	for i := range evs {
		evs[i] = orderEvent(fmt.Sprintf("evt-%d", i), "u1")
	}

	res, errs := dispatchAll(f, evs)
	for i := range evs {
		require.NoError(t, errs[i])
		assert.Equal(t, Result{Success: true, Processed: 5}, res[i])
	}
	assert.Equal(t, 1, f.dynamo.Calls["BatchWriteItem"], "one insert per batch")
	assert.Equal(t, float64(5), f.cw.Sum("OrdersInserted"))

	stored, err := f.orders.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for _, o := range stored {
		assert.Equal(t, orders.StatusPlaced, o.Status)
		assert.Equal(t, 102.0, o.Amount)
		assert.Equal(t, "a1", o.Address)
	}
}

func TestCreateUserOrder_SingleEventFlushesAfterTimeout(t *testing.T) {
	f := newSyncFixture(t, Batch{MaxSize: 5, Timeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := f.client.Dispatch(context.Background(), orderEvent("evt-1", "u1"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, Result{Success: true, Processed: 1}, res)

	got, err := f.orders.Get(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
}

func TestCreateUserOrder_MalformedEventDropped(t *testing.T) {
	f := newSyncFixture(t, Batch{MaxSize: 2, Timeout: time.Hour})
	bad := Event{ID: "evt-bad", Name: OrderCreated, Data: json.RawMessage(`{"items":[]}`)}

	res, errs := dispatchAll(f, []Event{orderEvent("evt-ok", "u1"), bad})
	for i := range res {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, res[i].Processed)
	}
	assert.Equal(t, 1, f.dynamo.Len("orders"))
}

func TestCreateUserOrder_StoreFailureIsRetryable(t *testing.T) {
	f := newSyncFixture(t, Batch{MaxSize: 2, Timeout: time.Hour})
	f.dynamo.Errs["BatchWriteItem"] = errors.New("throttled")

	_, errs := dispatchAll(f, []Event{orderEvent("e1", "u1"), orderEvent("e2", "u2")})
	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	}
}

func TestOrderFromEvent(t *testing.T) {
	o, err := OrderFromEvent(orderEvent("evt-9", "u9"))
	require.NoError(t, err)
	assert.Equal(t, orders.Order{
		ID:      "evt-9",
		UserID:  "u9",
		Items:   []orders.Item{{Product: "p1", Quantity: 2}},
		Amount:  102,
		Address: "a1",
		Status:  orders.StatusPlaced,
		Date:    1700000000000,
	}, o)

	noDate := Event{ID: "e", TS: 55, Data: json.RawMessage(`{"userId":"u"}`)}
	o, err = OrderFromEvent(noDate)
	require.NoError(t, err)
	assert.Equal(t, int64(55), o.Date)
}
