package awstest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// FakeSQS records sent messages and serves a receive queue.
type FakeSQS struct {
	mu       sync.Mutex
	Sent     []*sqs.SendMessageInput
	Queue    []sqstypes.Message
	Deleted  []string
	SendErr  error
	received int
}

// Enqueue adds a message body to the receive queue.
func (f *FakeSQS) Enqueue(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := strconv.Itoa(len(f.Queue) + f.received + 1)
	id, handle := "msg-"+n, "rh-"+n
	f.Queue = append(f.Queue, sqstypes.Message{MessageId: &id, ReceiptHandle: &handle, Body: &body})
}

// Bodies returns the bodies of all sent messages.
func (f *FakeSQS) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Sent))
	for _, in := range f.Sent {
		out = append(out, *in.MessageBody)
	}
	return out
}

// DeletedHandles returns the receipt handles passed to DeleteMessage.
func (f *FakeSQS) DeletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}

func (f *FakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.Sent = append(f.Sent, in)
	id := "sent-" + strconv.Itoa(len(f.Sent))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// ReceiveMessage hands out queued messages; with an empty queue it waits
// briefly so polling loops do not spin.
func (f *FakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	n := int(in.MaxNumberOfMessages)
	if n <= 0 {
		n = 1
	}
	if n > len(f.Queue) {
		n = len(f.Queue)
	}
	msgs := append([]sqstypes.Message(nil), f.Queue[:n]...)
	f.Queue = f.Queue[n:]
	f.received += n
	f.mu.Unlock()

	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *FakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}
