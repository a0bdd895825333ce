package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolveOnce(t *testing.T) {
	f, resolve, reject := New[int]()
	if f.Settled() {
		t.Fatal("new future should be pending")
	}

	resolve(1)
	resolve(2)
	reject(errors.New("late"))

	v, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
}

func TestRejected(t *testing.T) {
	want := errors.New("boom")
	_, err := Rejected[string](want).Await(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestAwaitContextCancelled(t *testing.T) {
	f, _, _ := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestThenChains(t *testing.T) {
	f := Then(Resolved(20), func(v int) *Future[int] {
		return Resolved(v + 1)
	})
	v, err := f.Await(context.Background())
	if err != nil || v != 21 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestThenShortCircuitsOnRejection(t *testing.T) {
	called := false
	want := errors.New("first failed")
	f := Then(Rejected[int](want), func(v int) *Future[int] {
		called = true
		return Resolved(v)
	})

	_, err := f.Await(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if called {
		t.Error("continuation should not run after rejection")
	}
}

func TestThenDoesNotStartBeforeSettle(t *testing.T) {
	first, resolve, _ := New[int]()
	started := make(chan struct{}, 1)

	out := Then(first, func(v int) *Future[int] {
		started <- struct{}{}
		return Resolved(v)
	})

	select {
	case <-started:
		t.Fatal("continuation started before source settled")
	case <-time.After(20 * time.Millisecond):
	}

	resolve(5)
	if v, err := out.Await(context.Background()); err != nil || v != 5 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var futures []*Future[int]
	for i := 0; i < 50; i++ {
		futures = append(futures, Submit(q, func() (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for i, f := range futures {
		v, err := f.Await(context.Background())
		if err != nil || v != i {
			t.Fatalf("future %d: got %d, %v", i, v, err)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestQueueNeverOverlaps(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var running, maxRunning int
	var mu sync.Mutex
	var futures []*Future[struct{}]
	for i := 0; i < 20; i++ {
		futures = append(futures, Submit(q, func() (struct{}, error) {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return struct{}{}, nil
		}))
	}
	for _, f := range futures {
		f.Await(context.Background())
	}
	if maxRunning != 1 {
		t.Errorf("expected serial execution, saw %d concurrent tasks", maxRunning)
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue()
	q.Close()

	_, err := Submit(q, func() (int, error) { return 1, nil }).Await(context.Background())
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueDrainsOnClose(t *testing.T) {
	q := NewQueue()
	f := Submit(q, func() (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	})
	q.Close()

	if !f.Settled() {
		t.Fatal("queued task should finish before Close returns")
	}
}
