package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	for i := range 10 {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 10, q.Len())

	for i := range 10 {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)

	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push("hello"))

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueuePushAfterClose(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.CloseWith())

	err := q.Push(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, q.Closed())

	// Double close reports ErrClosed
	assert.ErrorIs(t, q.CloseWith(), ErrClosed)
}

func TestQueuePushFuncRunsBeforeConsumerSeesItem(t *testing.T) {
	q := New[int]()
	var accepted atomic.Bool
	seen := make(chan bool, 1)

	go func() {
		_, _ = q.Pop()
		seen <- accepted.Load()
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.PushFunc(1, func() {
		// ブロック中のコンシューマーはこの間に取り出せない
		time.Sleep(20 * time.Millisecond)
		accepted.Store(true)
	}))

	select {
	case ok := <-seen:
		assert.True(t, ok, "consumer received the item before accepted returned")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueuePushFuncSkipsCallbackWhenClosed(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.CloseWith())

	called := false
	err := q.PushFunc(1, func() { called = true })
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, called)
}

func TestQueueCloseWithDrainsInOrder(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.CloseWith(-1, -1))

	var got []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, -1, -1}, got)
}

func TestQueueCloseWakesBlockedConsumers(t *testing.T) {
	q := New[int]()
	const consumers = 4

	var wg sync.WaitGroup
	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			assert.False(t, ok)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.CloseWith())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked consumers were not released by Close")
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	q := New[int]()
	const producers = 8
	const perProducer = 500

	var g errgroup.Group
	for p := range producers {
		g.Go(func() error {
			for i := range perProducer {
				if err := q.Push(p*perProducer + i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	seen := make([]bool, producers*perProducer)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	require.NoError(t, g.Wait())
	require.NoError(t, q.CloseWith())
	consumers.Wait()

	for i, ok := range seen {
		if !ok {
			t.Fatalf("item %d was never delivered", i)
		}
	}
}

func TestQueuePerProducerOrderPreserved(t *testing.T) {
	q := New[[2]int]()
	const producers = 4
	const perProducer = 200

	var g errgroup.Group
	for p := range producers {
		g.Go(func() error {
			for i := range perProducer {
				if err := q.Push([2]int{p, i}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, q.CloseWith())

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		require.Greater(t, v[1], last[v[0]], "producer %d delivered out of order", v[0])
		last[v[0]] = v[1]
	}
}
