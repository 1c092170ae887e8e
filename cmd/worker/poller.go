package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

const maxReceive = 10

// Poller long-polls the queue and feeds batches to a Processor. It stands in
// for the Lambda event source mapping when running locally.
type Poller struct {
	client    aws.SQSAPI
	queueURL  string
	wait      time.Duration
	processor *Processor
	logger    *zap.Logger
}

func NewPoller(client aws.SQSAPI, queueURL string, wait time.Duration, processor *Processor, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:    client,
		queueURL:  queueURL,
		wait:      wait,
		processor: processor,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("polling queue", zap.String("queue_url", p.queueURL))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// poll receives one batch, processes it and deletes every message that
// should not be redelivered.
func (p *Poller) poll(ctx context.Context) error {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &p.queueURL,
		MaxNumberOfMessages:   maxReceive,
		WaitTimeSeconds:       int32(p.wait / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return err
	}
	if len(out.Messages) == 0 {
		return nil
	}

	ev := events.SQSEvent{Records: make([]events.SQSMessage, 0, len(out.Messages))}
	handles := make(map[string]string, len(out.Messages))
	for _, m := range out.Messages {
		rec := toRecord(m)
		handles[rec.MessageId] = rec.ReceiptHandle
		ev.Records = append(ev.Records, rec)
	}

	resp, err := p.processor.Handle(ctx, ev)
	if err != nil {
		return err
	}
	for _, f := range resp.BatchItemFailures {
		delete(handles, f.ItemIdentifier)
	}
	for id, handle := range handles {
		if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &p.queueURL,
			ReceiptHandle: &handle,
		}); err != nil {
			p.logger.Warn("failed to delete message", zap.String("message_id", id), zap.Error(err))
		}
	}
	return nil
}

func toRecord(m sqstypes.Message) events.SQSMessage {
	rec := events.SQSMessage{
		MessageId:         deref(m.MessageId),
		ReceiptHandle:     deref(m.ReceiptHandle),
		Body:              deref(m.Body),
		MessageAttributes: map[string]events.SQSMessageAttribute{},
	}
	for name, attr := range m.MessageAttributes {
		rec.MessageAttributes[name] = events.SQSMessageAttribute{
			StringValue: attr.StringValue,
			DataType:    deref(attr.DataType),
		}
	}
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
