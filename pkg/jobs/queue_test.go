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

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan Task[string], 1)
	q := NewQueue("test", func(ctx context.Context, task Task[string]) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		done <- task
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Task[string]{ID: "t1", Payload: "hello"}))

	select {
	case task := <-done:
		assert.Equal(t, "hello", task.Payload)
		assert.Equal(t, 2, task.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(ctx context.Context, task Task[int]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), Task[int]{ID: "t1"}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Task[int]) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Task[int]{ID: "x"})
	assert.ErrorIs(t, err, ErrNotStarted)
}
