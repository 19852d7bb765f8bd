package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}

	assert.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return q.Stats().Processed == 5 }, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	assert.Eventually(t, func() bool { return q.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, q.Stats().Failed)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueStopsWithItsStartContext(t *testing.T) {
	q := NewQueue("scoped", func(ctx context.Context, job Job) error { return nil }, QueueConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	defer q.Stop()

	cancel()
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
}

func TestQueueOnOwnContextOutlivesSignalContext(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue("draining", func(ctx context.Context, job Job) error {
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 1})

	signalCtx, stopSignals := context.WithCancel(context.Background())
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	q.Start(queueCtx)

	stopSignals()
	<-signalCtx.Done()

	require.NoError(t, q.Enqueue(Job{ID: "in-flight-request"}))
	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 5*time.Millisecond)

	q.Stop()
	cancelQueue()
	assert.Equal(t, int64(1), q.Stats().Processed)
}
