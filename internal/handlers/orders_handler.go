package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/addresses"
	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
	"github.com/imrishuroy/go-storefront-sync/internal/logger"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/products"
	"github.com/imrishuroy/go-storefront-sync/internal/validation"
)

// IdempotencyHeader lets clients retry POST /api/order/create safely.
const IdempotencyHeader = "Idempotency-Key"

var taxRate = decimal.RequireFromString("0.02")

// orderView is an order with its address and products expanded. A reference
// that no longer resolves is rendered as null.
type orderView struct {
	ID      string             `json:"_id"`
	UserID  string             `json:"userId"`
	Items   []orderItemView    `json:"items"`
	Amount  float64            `json:"amount"`
	Address *addresses.Address `json:"address"`
	Status  string             `json:"status"`
	Date    int64              `json:"date"`
}

type orderItemView struct {
	Product  *products.Product `json:"product"`
	Quantity int               `json:"quantity"`
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	session := auth.Middleware(cfg.Auth)

	r.POST("/order/create", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		id, _ := auth.FromContext(c)

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote the envelope
			return nil
		}

		idemKey := ""
		if h := c.GetHeader(IdempotencyHeader); h != "" && cfg.Idempotency != nil {
			idemKey = idempotency.Key(idempotency.ScopeOrderCreate, id.UserID, h)
			rec, err := cfg.Idempotency.Begin(ctx, idemKey, "")
			if err != nil {
				return failure(c, err)
			}
			if rec != nil {
				if rec.Status == idempotency.StatusDone && rec.ResponseBody != "" {
					c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(rec.ResponseBody))
					return nil
				}
				return Err{Message: "Request already in progress"}
			}
		}

		if idemKey != "" {
			defer func() {
				if r := recover(); r != nil {
					if err := cfg.Idempotency.MarkFailed(ctx, idemKey, fmt.Sprint(r)); err != nil {
						log.Warn("idempotency mark failed", zap.Error(err))
					}
					panic(r)
				}
			}()
		}

		res := placeOrder(c, cfg, id.UserID, req)

		if idemKey != "" {
			if e, failed := res.(Err); failed {
				if err := cfg.Idempotency.MarkFailed(ctx, idemKey, e.Message); err != nil {
					log.Warn("idempotency mark failed", zap.Error(err))
				}
			} else {
				body, _ := json.Marshal(res.envelope())
				if err := cfg.Idempotency.MarkDone(ctx, idemKey, string(body), http.StatusOK); err != nil {
					log.Warn("idempotency mark done", zap.Error(err))
				}
			}
		}
		return res
	}))

	r.GET("/order/list", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		id, _ := auth.FromContext(c)

		list, err := cfg.Orders.ListByUser(ctx, id.UserID)
		if err != nil {
			return failure(c, err)
		}

		views, err := expandOrders(ctx, cfg, list)
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "orders", Data: views}
	}))

	r.GET("/order/:id", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		id, _ := auth.FromContext(c)

		o, err := cfg.Orders.Get(ctx, c.Param("id"))
		if err != nil {
			return failure(c, err)
		}
		if o == nil || o.UserID != id.UserID {
			return Err{Message: "Order not found"}
		}
		views, err := expandOrders(ctx, cfg, []orders.Order{*o})
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "order", Data: views[0]}
	}))
}

// placeOrder checks the address and products, prices the order and
// publishes order/created. The order document is written by the worker.
func placeOrder(c *gin.Context, cfg HandlerConfig, userID string, req validation.CreateOrderRequest) Response {
	ctx := c.Request.Context()

	addr, err := cfg.Addresses.Get(ctx, req.Address)
	if err != nil {
		return failure(c, err)
	}
	if addr == nil || addr.UserID != userID {
		return Err{Message: "Address not found"}
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.Product)
	}
	prods, err := cfg.Products.GetMany(ctx, ids)
	if err != nil {
		return failure(c, err)
	}

	items := make([]orders.Item, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, it := range req.Items {
		p, ok := prods[it.Product]
		if !ok {
			return Err{Message: fmt.Sprintf("Product not found: %s", it.Product)}
		}
		subtotal = subtotal.Add(decimal.NewFromFloat(p.OfferPrice).Mul(decimal.NewFromInt(int64(it.Quantity))))
		items = append(items, orders.Item{Product: it.Product, Quantity: it.Quantity})
	}

	ev, err := cfg.Events.Send(ctx, eventbus.OrderCreated, eventbus.OrderCreatedData{
		UserID:  userID,
		Items:   items,
		Amount:  OrderAmount(subtotal),
		Address: req.Address,
		Date:    cfg.now().UnixMilli(),
	})
	if err != nil {
		return failure(c, err)
	}
	return Ok{Message: "Order Placed", Key: "orderId", Data: ev.ID}
}

// OrderAmount adds the 2% tax, rounded down to a whole unit, to subtotal.
func OrderAmount(subtotal decimal.Decimal) float64 {
	tax := subtotal.Mul(taxRate).Floor()
	return subtotal.Add(tax).InexactFloat64()
}

// expandOrders resolves the address and products of every order in two
// batch reads.
func expandOrders(ctx context.Context, cfg HandlerConfig, list []orders.Order) ([]orderView, error) {
	addressIDs := make([]string, 0, len(list))
	var productIDs []string
	for _, o := range list {
		addressIDs = append(addressIDs, o.Address)
		for _, it := range o.Items {
			productIDs = append(productIDs, it.Product)
		}
	}
	addrs, err := cfg.Addresses.GetMany(ctx, addressIDs)
	if err != nil {
		return nil, err
	}
	prods, err := cfg.Products.GetMany(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, expandOrder(o, addrs, prods))
	}
	return views, nil
}

func expandOrder(o orders.Order, addrs map[string]addresses.Address, prods map[string]products.Product) orderView {
	view := orderView{
		ID:     o.ID,
		UserID: o.UserID,
		Items:  make([]orderItemView, 0, len(o.Items)),
		Amount: o.Amount,
		Status: o.Status,
		Date:   o.Date,
	}
	if a, ok := addrs[o.Address]; ok {
		view.Address = &a
	}
	for _, it := range o.Items {
		item := orderItemView{Quantity: it.Quantity}
		if p, ok := prods[it.Product]; ok {
			item.Product = &p
		}
		view.Items = append(view.Items, item)
	}
	return view
}
