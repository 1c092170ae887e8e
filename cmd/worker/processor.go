package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
)

// Metric names recorded by the worker.
const (
	MetricEventsProcessed = "EventsProcessed"
	MetricEventsFailed    = "EventsFailed"
)

// Dispatcher runs the function registered for an event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev eventbus.Event) (eventbus.Result, error)
}

// Processor turns SQS records into function invocations.
type Processor struct {
	events  Dispatcher
	metrics eventbus.Counter
	logger  *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(events Dispatcher, metrics eventbus.Counter, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Handle processes an SQS batch. Records are dispatched concurrently so that
// batched functions see the whole delivery at once. Only records that failed
// with a retryable error are reported back; SQS redelivers those and
// eventually moves them to the DLQ. Permanent failures are logged and
// acknowledged.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	p.logger.Debug("received SQS batch", zap.Int("records", len(ev.Records)))

	retry := make([]bool, len(ev.Records))
	var g errgroup.Group
	for i, rec := range ev.Records {
		g.Go(func() error {
			retry[i] = p.process(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	var resp events.SQSEventResponse
	for i, rec := range ev.Records {
		if retry[i] {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// process reports whether rec should be redelivered.
func (p *Processor) process(ctx context.Context, rec events.SQSMessage) bool {
	log := p.logger.With(zap.String("message_id", rec.MessageId))

	ev, err := eventbus.Decode([]byte(rec.Body))
	if err != nil {
		log.Error("dropping undecodable message", zap.Error(err), zap.String("body", rec.Body))
		p.count(ctx, MetricEventsFailed, "unknown")
		return false
	}

	if _, err := p.events.Dispatch(ctx, ev); err != nil {
		if eventbus.IsRetryable(err) {
			log.Warn("event will be retried", zap.String("event", ev.Name), zap.Error(err))
			return true
		}
		log.Error("dropping event", zap.String("event", ev.Name), zap.String("event_id", ev.ID), zap.Error(err))
		p.count(ctx, MetricEventsFailed, ev.Name)
		return false
	}
	p.count(ctx, MetricEventsProcessed, ev.Name)
	return false
}

func (p *Processor) count(ctx context.Context, metric, event string) {
	if p.metrics == nil {
		return
	}
	if err := p.metrics.Count(ctx, metric, 1, map[string]string{"Event": event}); err != nil {
		p.logger.Warn("failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}
