package enforce

import (
	"context"
	"sync"
)

// Future is the pending result of an asynchronous callable.
//
// A panic raised while producing the result (including a contract
// Violation) is re-raised in every goroutine that calls Await.
type Future struct {
	done     chan struct{}
	value    any
	err      error
	panicked any

	// continuation futures run next once, in the first awaiting goroutine
	src  *Future
	next func(any, error) (any, error)
	once sync.Once
}

// NewFuture returns an unresolved future and the function that resolves it.
// Only the first call to resolve has an effect.
func NewFuture() (*Future, func(any, error)) {
	f := &Future{done: make(chan struct{})}
	var once sync.Once
	return f, func(v any, err error) {
		once.Do(func() {
			f.value, f.err = v, err
			close(f.done)
		})
	}
}

// Resolved returns a future that is already complete.
func Resolved(v any, err error) *Future {
	f, resolve := NewFuture()
	resolve(v, err)
	return f
}

// Go runs fn in a new goroutine and resolves the future with its result.
func Go(fn func() (any, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.panicked = r
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Then returns a future whose result is next applied to f's result. next
// runs once, in the first goroutine that awaits the returned future; it adds
// no goroutine or suspension point of its own. If that first Await gives up
// because its context is done, next runs with the context's error and the
// future settles with whatever next returns.
func Then(f *Future, next func(any, error) (any, error)) *Future {
	return &Future{done: make(chan struct{}), src: f, next: next}
}

// Await blocks until the result is available or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	if f.src != nil {
		v, err := f.src.Await(ctx)
		f.once.Do(func() {
			defer close(f.done)
			defer func() {
				if r := recover(); r != nil {
					f.panicked = r
				}
			}()
			f.value, f.err = f.next(v, err)
		})
		return f.result()
	}

	select {
	case <-f.done:
		return f.result()
	default:
	}
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the result is available. Continuation futures are
// resolved by their first Await.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) result() (any, error) {
	if f.panicked != nil {
		panic(f.panicked)
	}
	return f.value, f.err
}
