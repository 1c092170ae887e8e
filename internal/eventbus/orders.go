package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/orders"
)

// OrderStore is the part of orders.Store the order function needs.
type OrderStore interface {
	InsertBatch(ctx context.Context, batch []orders.Order) (int, error)
}

// Counter records a metric. aws.Metrics satisfies it.
type Counter interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// OrderFromEvent maps one order/created event to its order document. The
// event id becomes the order id, so a redelivered event overwrites rather
// than duplicates.
func OrderFromEvent(ev Event) (orders.Order, error) {
	var data OrderCreatedData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return orders.Order{}, invalid("decode order: %v", err)
	}
	if data.UserID == "" {
		return orders.Order{}, invalid("order %s: userId is missing", ev.ID)
	}
	date := data.Date
	if date == 0 {
		date = ev.TS
	}
	return orders.Order{
		ID:      ev.ID,
		UserID:  data.UserID,
		Items:   data.Items,
		Amount:  data.Amount,
		Address: data.Address,
		Status:  orders.StatusPlaced,
		Date:    date,
	}, nil
}

// CreateUserOrders writes one batch of order/created events with a single
// insert. Events that cannot be decoded are dropped from the batch and
// logged; they are never retried.
func CreateUserOrders(store OrderStore, metrics Counter, logger *zap.Logger) BatchHandler {
	return func(ctx context.Context, evs []Event) (Result, error) {
		batch := make([]orders.Order, 0, len(evs))
		for _, ev := range evs {
			o, err := OrderFromEvent(ev)
			if err != nil {
				logger.Error("dropping order event", zap.String("event_id", ev.ID), zap.Error(err))
				continue
			}
			batch = append(batch, o)
		}
		if len(batch) == 0 {
			return Result{Success: true}, nil
		}

		n, err := store.InsertBatch(ctx, batch)
		if err != nil {
			return Result{Processed: n}, Retryable(fmt.Errorf("insert %d orders: %w", len(batch), err))
		}
		if metrics != nil {
			if err := metrics.Count(ctx, "OrdersInserted", float64(n), nil); err != nil {
				logger.Warn("metric publish failed", zap.Error(err))
			}
		}
		logger.Info("orders inserted", zap.Int("batch", len(evs)), zap.Int("processed", n))
		return Result{Success: true, Processed: n}, nil
	}
}
