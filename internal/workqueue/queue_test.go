package workqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryuzot/h5mobaku/internal/workqueue"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := workqueue.New(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, &workqueue.Item{T: i}))
	}

	for i := 0; i < 4; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item.T)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := workqueue.New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &workqueue.Item{T: 1}))

	done := make(chan struct{})
	go func() {
		require.NoError(t, q.Enqueue(ctx, &workqueue.Item{T: 2}))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("enqueue on a full queue should have blocked")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue should unblock once a slot frees up")
	}
}

func TestCloseDeliversSentinel(t *testing.T) {
	q := workqueue.New(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &workqueue.Item{T: 1}))
	q.Close()

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	sentinel, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Nil(t, sentinel)
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	q := workqueue.New(4)
	ctx := context.Background()
	q.Close()

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	err = q.Enqueue(ctx, &workqueue.Item{T: 1})
	require.ErrorIs(t, err, workqueue.ErrClosed)
}

func TestMultiProducerSingleConsumer(t *testing.T) {
	q := workqueue.New(8)
	ctx := context.Background()

	const producers = 6
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(ctx, &workqueue.Item{T: p*perProducer + i})
			}
		}(p)
	}

	go func() {
		wg.Wait()
		q.Close()
	}()

	count := 0
	for {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if item == nil {
			break
		}
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
