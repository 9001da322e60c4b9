package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func pushAsync(q *FrameQueue[int], v int, force bool) <-chan error {
	done := make(chan error, 1)
	go func() { done <- q.Push(context.Background(), v, force) }()
	return done
}

func assertBlocked(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("operation returned early with %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func assertDone(t *testing.T, done <-chan error, want error) {
	t.Helper()
	select {
	case err := <-done:
		if !errors.Is(err, want) {
			t.Fatalf("got %v, want %v", err, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("operation still blocked")
	}
}

func TestFrameQueueFIFO(t *testing.T) {
	q := NewFrameQueue[int](3)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Push(ctx, i, false); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if got != want {
			t.Errorf("Pop = %d, want %d", got, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned an item")
	}
}

func TestFrameQueueBlockingPushReleasedByPop(t *testing.T) {
	q := NewFrameQueue[int](4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := q.Push(ctx, i, false); err != nil {
			t.Fatal(err)
		}
	}

	done := pushAsync(q, 4, false)
	assertBlocked(t, done)
	if q.Len() != 4 {
		t.Fatalf("Len = %d while push blocked, want 4", q.Len())
	}

	if v, err := q.Pop(ctx); err != nil || v != 0 {
		t.Fatalf("Pop = %d, %v", v, err)
	}
	assertDone(t, done, nil)
	if q.Len() != 4 {
		t.Errorf("Len = %d, want 4", q.Len())
	}
}

func TestFrameQueueForcePush(t *testing.T) {
	q := NewFrameQueue[int](4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		q.Push(ctx, i, false)
	}

	done := pushAsync(q, 4, true)
	assertDone(t, done, nil)
	if q.Len() != 5 {
		t.Errorf("Len = %d, want 5", q.Len())
	}
	if st := q.Stats(); st.Forced != 1 || st.HighWater != 5 {
		t.Errorf("stats = %+v, want 1 forced and high water 5", st)
	}
}

func TestFrameQueueMaxOverflow(t *testing.T) {
	q := NewFrameQueue[int](2, WithMaxOverflow(1))
	ctx := context.Background()
	q.Push(ctx, 0, false)
	q.Push(ctx, 1, false)
	if err := q.Push(ctx, 2, true); err != nil {
		t.Fatalf("first forced push: %v", err)
	}

	done := pushAsync(q, 3, true)
	assertBlocked(t, done)
	q.Pop(ctx)
	assertDone(t, done, nil)
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}
}

func TestFrameQueuePushCancelled(t *testing.T) {
	q := NewFrameQueue[int](1)
	q.Push(context.Background(), 0, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, 1, false) }()
	assertBlocked(t, done)

	cancel()
	assertDone(t, done, context.Canceled)
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}

func TestFrameQueueCloseWakesWaiters(t *testing.T) {
	full := NewFrameQueue[int](1)
	full.Push(context.Background(), 0, false)
	pushDone := pushAsync(full, 1, false)

	empty := NewFrameQueue[int](1)
	popDone := make(chan error, 1)
	go func() {
		_, err := empty.Pop(context.Background())
		popDone <- err
	}()

	assertBlocked(t, pushDone)
	assertBlocked(t, popDone)

	full.Close()
	empty.Close()
	assertDone(t, pushDone, ErrQueueClosed)
	assertDone(t, popDone, ErrQueueClosed)

	// Items queued before Close are still delivered.
	if v, err := full.Pop(context.Background()); err != nil || v != 0 {
		t.Fatalf("Pop after Close = %d, %v", v, err)
	}
	if _, err := full.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Pop on drained closed queue = %v, want ErrQueueClosed", err)
	}
	if err := full.Push(context.Background(), 2, true); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Push after Close = %v, want ErrQueueClosed", err)
	}
}

type releaseCounter struct {
	mu sync.Mutex
	n  int
}

func (r *releaseCounter) frame() *VideoFrame {
	f := &VideoFrame{}
	f.SetRelease(func() {
		r.mu.Lock()
		r.n++
		r.mu.Unlock()
	})
	return f
}

func (r *releaseCounter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func TestFrameQueueFlushReleases(t *testing.T) {
	var rc releaseCounter
	q := NewFrameQueue[*VideoFrame](4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		q.Push(ctx, rc.frame(), false)
	}

	if n := q.Flush(); n != 3 {
		t.Errorf("Flush = %d, want 3", n)
	}
	if rc.count() != 3 {
		t.Errorf("released %d frames, want 3", rc.count())
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after Flush", q.Len())
	}
	if st := q.Stats(); st.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", st.Dropped)
	}
}

func TestFrameQueueSizeStaysInBounds(t *testing.T) {
	const capacity = 3
	q := NewFrameQueue[int](capacity)
	ctx := context.Background()

	// Non-forced pushes only happen when there is room, so the queue must
	// never report more than capacity items.
	ops := []bool{true, true, false, true, true, true, false, false, true, false, false, false, false}
	for i, push := range ops {
		if push {
			if q.Len() < capacity {
				q.Push(ctx, i, false)
			}
		} else {
			q.TryPop()
		}
		if n := q.Len(); n < 0 || n > capacity {
			t.Fatalf("step %d: Len = %d out of [0, %d]", i, n, capacity)
		}
	}
}

func TestFrameQueueConcurrent(t *testing.T) {
	const total = 1000
	q := NewFrameQueue[int](4)
	ctx := context.Background()

	go func() {
		for i := 0; i < total; i++ {
			if err := q.Push(ctx, i, false); err != nil {
				t.Errorf("Push: %v", err)
				return
			}
		}
		q.Close()
	}()

	for want := 0; ; want++ {
		got, err := q.Pop(ctx)
		if errors.Is(err, ErrQueueClosed) {
			if want != total {
				t.Fatalf("received %d items, want %d", want, total)
			}
			return
		}
		if got != want {
			t.Fatalf("Pop = %d, want %d", got, want)
		}
		if q.Len() > q.Cap() {
			t.Fatalf("Len %d exceeds capacity", q.Len())
		}
	}
}
