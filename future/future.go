// Package future provides single-assignment futures and a serial task queue
// used to run guest code in asynchronous mode.
package future

import (
	"context"
	"sync"
)

// Future is a value that settles exactly once, either with a value or an error.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns a pending future with its resolve and reject functions.
// Only the first call to either function has an effect.
func New[T any]() (*Future[T], func(T), func(error)) {
	f := &Future[T]{done: make(chan struct{})}
	resolve := func(v T) { f.settle(v, nil) }
	reject := func(err error) {
		var zero T
		f.settle(zero, err)
	}
	return f, resolve, reject
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f, resolve, _ := New[T]()
	resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f, _, reject := New[T]()
	reject(err)
	return f
}

// From returns a settled future carrying the result of a synchronous call.
func From[T any](v T, err error) *Future[T] {
	if err != nil {
		return Rejected[T](err)
	}
	return Resolved(v)
}

// Go runs fn on a new goroutine and returns a future for its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, resolve, reject := New[T]()
	go func() {
		v, err := fn()
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	}()
	return f
}

func (f *Future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a value or an error.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains fn after f. fn runs only if f resolves; a rejection of f
// rejects the returned future without calling fn.
func Then[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out, resolve, reject := New[U]()
	go func() {
		<-f.done
		if f.err != nil {
			reject(f.err)
			return
		}
		next := fn(f.value)
		<-next.done
		if next.err != nil {
			reject(next.err)
			return
		}
		resolve(next.value)
	}()
	return out
}
