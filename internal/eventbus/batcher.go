package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBatcherClosed is returned by Submit after Close.
var ErrBatcherClosed = errors.New("batcher closed")

const defaultFlushTimeout = 30 * time.Second

// FlushFunc handles one batch. Its result is delivered to every submitter
// whose item was in the batch.
type FlushFunc[T, R any] func(ctx context.Context, items []T) (R, error)

type outcome[R any] struct {
	res R
	err error
}

type pending[T, R any] struct {
	item T
	done chan outcome[R]
}

// Batcher collects items and flushes them when maxSize items are queued or
// maxWait has passed since the first queued item, whichever comes first.
type Batcher[T, R any] struct {
	maxSize      int
	maxWait      time.Duration
	flushTimeout time.Duration
	flush        FlushFunc[T, R]

	mu      sync.Mutex
	queue   []pending[T, R]
	timer   *time.Timer
	gen     uint64 // bumped on every take so stale timers are ignored
	closed  bool
	running sync.WaitGroup
}

func NewBatcher[T, R any](maxSize int, maxWait time.Duration, flush FlushFunc[T, R]) *Batcher[T, R] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher[T, R]{
		maxSize:      maxSize,
		maxWait:      maxWait,
		flushTimeout: defaultFlushTimeout,
		flush:        flush,
	}
}

// Submit queues item and blocks until its batch has been flushed or ctx is
// done. A cancelled submitter does not remove its item from the batch.
func (b *Batcher[T, R]) Submit(ctx context.Context, item T) (R, error) {
	var zero R
	done := make(chan outcome[R], 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return zero, ErrBatcherClosed
	}
	b.queue = append(b.queue, pending[T, R]{item: item, done: done})
	if len(b.queue) == 1 {
		gen := b.gen
		b.timer = time.AfterFunc(b.maxWait, func() { b.flushIfCurrent(gen) })
	}
	var batch []pending[T, R]
	if len(b.queue) >= b.maxSize {
		batch = b.take()
		b.running.Add(1)
	}
	b.mu.Unlock()

	if batch != nil {
		go b.run(batch)
	}

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len returns the number of queued items.
func (b *Batcher[T, R]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close flushes whatever is queued and waits for in-flight flushes.
func (b *Batcher[T, R]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.running.Wait()
		return
	}
	b.closed = true
	batch := b.take()
	if len(batch) > 0 {
		b.running.Add(1)
	}
	b.mu.Unlock()

	if len(batch) > 0 {
		b.run(batch)
	}
	b.running.Wait()
}

func (b *Batcher[T, R]) flushIfCurrent(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.running.Add(1)
	b.mu.Unlock()
	b.run(batch)
}

// take must be called with mu held.
func (b *Batcher[T, R]) take() []pending[T, R] {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	batch := b.queue
	b.queue = nil
	return batch
}

func (b *Batcher[T, R]) run(batch []pending[T, R]) {
	defer b.running.Done()

	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	defer cancel()

	items := make([]T, len(batch))
	for i, p := range batch {
		items[i] = p.item
	}
	res, err := b.safeFlush(ctx, items)
	for _, p := range batch {
		p.done <- outcome[R]{res: res, err: err}
	}
}

func (b *Batcher[T, R]) safeFlush(ctx context.Context, items []T) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch flush panicked: %v", r)
		}
	}()
	return b.flush(ctx, items)
}
