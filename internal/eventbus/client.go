package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) (Result, error)

// BatchHandler processes a batch of events of the same name.
type BatchHandler func(ctx context.Context, evs []Event) (Result, error)

// Batch bounds a batched function.
type Batch struct {
	MaxSize int
	Timeout time.Duration
}

// Function binds a handler to the event name that triggers it. Exactly one
// of Handler and BatchHandler is set.
type Function struct {
	ID           string
	Trigger      string
	Handler      Handler
	BatchHandler BatchHandler
	Batch        Batch
}

// Publisher puts an encoded event on the queue.
type Publisher interface {
	Publish(ctx context.Context, body string, attributes map[string]string) error
}

// Message attribute names set by Send.
const (
	AttrEventName = "event_name"
	AttrEventID   = "event_id"
)

type registered struct {
	fn      Function
	batcher *Batcher[Event, Result]
}

// Client is the function registry. Send publishes events; Dispatch runs the
// function registered for an event that came off the queue.
type Client struct {
	appID     string
	publisher Publisher
	logger    *zap.Logger

	mu        sync.RWMutex
	functions map[string]*registered

	newID   func() string
	nowFunc func() time.Time
}

func NewClient(appID string, publisher Publisher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		appID:     appID,
		publisher: publisher,
		logger:    logger.Named("eventbus"),
		functions: map[string]*registered{},
		newID:     func() string { return uuid.NewString() },
		nowFunc:   time.Now,
	}
}

// Register adds functions to the registry. One function per trigger.
func (c *Client) Register(fns ...Function) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fn := range fns {
		if fn.ID == "" || fn.Trigger == "" {
			return errors.New("function id and trigger are required")
		}
		if (fn.Handler == nil) == (fn.BatchHandler == nil) {
			return fmt.Errorf("function %s: exactly one of Handler and BatchHandler must be set", fn.ID)
		}
		if _, ok := c.functions[fn.Trigger]; ok {
			return fmt.Errorf("function %s: trigger %s already registered", fn.ID, fn.Trigger)
		}
		r := &registered{fn: fn}
		if fn.BatchHandler != nil {
			r.batcher = NewBatcher(fn.Batch.MaxSize, fn.Batch.Timeout, FlushFunc[Event, Result](fn.BatchHandler))
		}
		c.functions[fn.Trigger] = r
		c.logger.Debug("function registered", zap.String("function", fn.ID), zap.String("trigger", fn.Trigger))
	}
	return nil
}

// Functions returns the registered function ids keyed by trigger.
func (c *Client) Functions() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.functions))
	for trigger, r := range c.functions {
		out[trigger] = r.fn.ID
	}
	return out
}

// Dispatch runs the function registered for ev.Name. For batched functions
// it blocks until the batch holding ev has been flushed.
func (c *Client) Dispatch(ctx context.Context, ev Event) (Result, error) {
	c.mu.RLock()
	r, ok := c.functions[ev.Name]
	c.mu.RUnlock()
	if !ok {
		return Result{}, Permanent(fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name))
	}

	log := c.logger.With(
		zap.String("function", r.fn.ID),
		zap.String("event", ev.Name),
		zap.String("event_id", ev.ID),
	)
	start := c.nowFunc()

	var (
		res Result
		err error
	)
	if r.batcher != nil {
		res, err = r.batcher.Submit(ctx, ev)
	} else {
		res, err = r.fn.Handler(ctx, ev)
	}
	if err != nil {
		log.Warn("function failed",
			zap.Error(err),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Duration("took", c.nowFunc().Sub(start)),
		)
		return res, err
	}
	log.Info("function completed",
		zap.Bool("success", res.Success),
		zap.Int("processed", res.Processed),
		zap.Duration("took", c.nowFunc().Sub(start)),
	)
	return res, nil
}

// Send wraps data in an Event and publishes it.
func (c *Client) Send(ctx context.Context, name string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s data: %w", name, err)
	}
	ev := Event{
		ID:   c.newID(),
		Name: name,
		Data: raw,
		TS:   c.nowFunc().UnixMilli(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event: %w", err)
	}
	if c.publisher == nil {
		return Event{}, errors.New("eventbus: no publisher configured")
	}
	if err := c.publisher.Publish(ctx, string(body), map[string]string{
		AttrEventName: name,
		AttrEventID:   ev.ID,
		"app_id":      c.appID,
	}); err != nil {
		return Event{}, fmt.Errorf("publish %s: %w", name, err)
	}
	c.logger.Debug("event sent", zap.String("event", name), zap.String("event_id", ev.ID))
	return ev, nil
}

// Close flushes pending batches. Dispatch of batched events fails after Close.
func (c *Client) Close() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.functions {
		if r.batcher != nil {
			r.batcher.Close()
		}
	}
}

// Decode parses a queue message body into an Event.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, invalid("decode envelope: %v", err)
	}
	if ev.Name == "" {
		return Event{}, invalid("event name is missing")
	}
	return ev, nil
}
