package completer

import (
	"context"
	"sync"
)

// Future is a handle on the result of an asynchronous engine call.
type Future[T any] interface {
	// Ready reports whether the result is available. It never blocks.
	Ready() bool

	// Wait blocks until the result is available or ctx is done.
	Wait(ctx context.Context) (T, error)
}

// Promise is a Future resolved exactly once by its producer.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}

	value T
	err   error
}

// NewPromise creates an unresolved promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a promise that is already resolved.
func Resolved[T any](value T, err error) *Promise[T] {
	p := NewPromise[T]()
	p.Resolve(value, err)
	return p
}

// Resolve sets the result. Only the first call has an effect; it reports
// whether this call resolved the promise.
func (p *Promise[T]) Resolve(value T, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Ready implements Future.
func (p *Promise[T]) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on resolution.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait implements Future.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
