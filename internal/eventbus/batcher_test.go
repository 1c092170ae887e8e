package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *recorder) flush(ctx context.Context, items []int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]int(nil), items...))
	return len(items), nil
}

func (r *recorder) snapshot() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.batches...)
}

func submitAll(b *Batcher[int, int], n int) ([]int, []error) {
	res := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res[i], errs[i] = b.Submit(context.Background(), i)
		}(i)
	}
	wg.Wait()
	return res, errs
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, time.Hour, rec.flush)
	defer b.Close()

	start := time.Now()
	res, errs := submitAll(b, 5)

	assert.Less(t, time.Since(start), time.Second, "a full batch must not wait for the timeout")
	require.Len(t, rec.snapshot(), 1)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, rec.snapshot()[0])
	for i := range res {
		assert.NoError(t, errs[i])
		assert.Equal(t, 5, res[i], "every submitter sees the batch result")
	}
}

func TestBatcher_FlushesOnTimeout(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, 50*time.Millisecond, rec.flush)
	defer b.Close()

	start := time.Now()
	n, err := b.Submit(context.Background(), 42)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]int{{42}}, rec.snapshot())
}

func TestBatcher_SplitsOverflow(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, 50*time.Millisecond, rec.flush)
	defer b.Close()

	_, errs := submitAll(b, 7)
	for _, err := range errs {
		assert.NoError(t, err)
	}

	total := 0
	for _, batch := range rec.snapshot() {
		assert.LessOrEqual(t, len(batch), 5)
		total += len(batch)
	}
	assert.Equal(t, 7, total)
}

func TestBatcher_ErrorReachesEverySubmitter(t *testing.T) {
	boom := errors.New("boom")
	b := NewBatcher(3, time.Hour, func(ctx context.Context, items []int) (int, error) {
		return 0, boom
	})
	defer b.Close()

	_, errs := submitAll(b, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestBatcher_PanicBecomesError(t *testing.T) {
	b := NewBatcher(1, time.Hour, func(ctx context.Context, items []int) (int, error) {
		panic("bad flush")
	})
	defer b.Close()

	_, err := b.Submit(context.Background(), 1)
	assert.ErrorContains(t, err, "bad flush")
}

func TestBatcher_CloseFlushesPending(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, time.Hour, rec.flush)

	done := make(chan error, 1)
	go func() {
		_, err := b.Submit(context.Background(), 7)
		done <- err
	}()
	require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

	b.Close()
	assert.NoError(t, <-done)
	assert.Equal(t, [][]int{{7}}, rec.snapshot())

	_, err := b.Submit(context.Background(), 8)
	assert.ErrorIs(t, err, ErrBatcherClosed)
}

func TestBatcher_SubmitterContextCancelled(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, time.Hour, rec.flush)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Submit(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	b.Close()
	assert.Equal(t, [][]int{{1}}, rec.snapshot(), "queued item is still flushed")
}
