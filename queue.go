package playback

import (
	"context"
	"sync"
	"sync/atomic"
)

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Pushed    uint64 // Items accepted by Push
	Popped    uint64 // Items removed by Pop/TryPop
	Forced    uint64 // Pushes that went past capacity
	Dropped   uint64 // Items discarded by Flush
	HighWater int    // Largest size observed
}

// QueueOption configures a FrameQueue.
type QueueOption func(*queueConfig)

type queueConfig struct {
	maxOverflow int
}

// WithMaxOverflow limits how far force-pushes may exceed capacity. Once
// the queue holds capacity+n items a force-push waits like a normal push.
// Zero, the default, leaves force-pushes unbounded.
func WithMaxOverflow(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.maxOverflow = n
		}
	}
}

// FrameQueue is a bounded FIFO shared by one producer and one consumer.
//
// Push blocks while the queue is full unless force is set, Pop blocks while
// it is empty. Both are interrupted by context cancellation and by Close.
// Len is lock-free and may be read from any goroutine.
type FrameQueue[T any] struct {
	mu          sync.Mutex
	items       []T
	capacity    int
	maxOverflow int
	closed      bool

	// notFull and notEmpty are closed to wake waiters, then replaced.
	notFull     chan struct{}
	notEmpty    chan struct{}
	pushWaiters int
	popWaiters  int

	size  atomic.Int64
	stats QueueStats
}

// NewFrameQueue creates a queue holding up to capacity items.
func NewFrameQueue[T any](capacity int, opts ...QueueOption) *FrameQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	var cfg queueConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FrameQueue[T]{
		items:       make([]T, 0, capacity),
		capacity:    capacity,
		maxOverflow: cfg.maxOverflow,
		notFull:     make(chan struct{}),
		notEmpty:    make(chan struct{}),
	}
}

// Push appends item. When the queue is full and force is false, Push waits
// for a Pop, Close or ctx cancellation. When force is true the item is
// appended past capacity without waiting.
func (q *FrameQueue[T]) Push(ctx context.Context, item T, force bool) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		n := len(q.items)
		if n < q.capacity || (force && q.overflowAllowed(n)) {
			q.items = append(q.items, item)
			q.size.Store(int64(n + 1))
			q.stats.Pushed++
			if n >= q.capacity {
				q.stats.Forced++
			}
			if n+1 > q.stats.HighWater {
				q.stats.HighWater = n + 1
			}
			if q.popWaiters > 0 {
				q.notEmpty = wake(q.notEmpty)
			}
			q.mu.Unlock()
			return nil
		}

		wait := q.notFull
		q.pushWaiters++
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			q.mu.Lock()
			q.pushWaiters--
			q.mu.Unlock()
			return ctx.Err()
		}

		q.mu.Lock()
		q.pushWaiters--
	}
}

func (q *FrameQueue[T]) overflowAllowed(n int) bool {
	return q.maxOverflow == 0 || n < q.capacity+q.maxOverflow
}

// Pop removes and returns the oldest item, waiting while the queue is empty.
// After Close, Pop keeps returning queued items and then ErrQueueClosed.
func (q *FrameQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	q.mu.Lock()
	for len(q.items) == 0 {
		if q.closed {
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}

		wait := q.notEmpty
		q.popWaiters++
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			q.mu.Lock()
			q.popWaiters--
			q.mu.Unlock()
			return zero, ctx.Err()
		}

		q.mu.Lock()
		q.popWaiters--
	}
	item := q.popLocked()
	q.mu.Unlock()
	return item, nil
}

// TryPop removes the oldest item without waiting.
func (q *FrameQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

func (q *FrameQueue[T]) popLocked() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.size.Store(int64(len(q.items)))
	q.stats.Popped++
	if q.pushWaiters > 0 {
		q.notFull = wake(q.notFull)
	}
	return item
}

// Len returns the current number of queued items without blocking.
func (q *FrameQueue[T]) Len() int {
	return int(q.size.Load())
}

// Cap returns the configured capacity.
func (q *FrameQueue[T]) Cap() int {
	return q.capacity
}

// Close rejects further pushes and wakes every waiter. Queued items stay
// available to Pop. Close is idempotent.
func (q *FrameQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull = wake(q.notFull)
	q.notEmpty = wake(q.notEmpty)
}

// Closed reports whether Close has been called.
func (q *FrameQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Flush discards all queued items, releasing those that implement Releaser,
// and returns how many were dropped.
func (q *FrameQueue[T]) Flush() int {
	q.mu.Lock()
	dropped := q.items
	q.items = make([]T, 0, q.capacity)
	q.size.Store(0)
	q.stats.Dropped += uint64(len(dropped))
	if q.pushWaiters > 0 {
		q.notFull = wake(q.notFull)
	}
	q.mu.Unlock()

	for _, item := range dropped {
		releaseItem(item)
	}
	return len(dropped)
}

// Stats returns a snapshot of the queue counters.
func (q *FrameQueue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// wake closes ch to release every goroutine selecting on it and returns a
// fresh channel for the next round of waiters.
func wake(ch chan struct{}) chan struct{} {
	close(ch)
	return make(chan struct{})
}

// releaseItem calls Release if the item implements Releaser.
func releaseItem[T any](item T) {
	if r, ok := any(item).(Releaser); ok {
		r.Release()
	}
}
