// Package stream turns callback-style live subscriptions into channels whose
// lifetime is bound to a context.
package stream

import (
	"context"
	"sync"
)

// Update is one delivery of a live subscription. A non-nil Err is the last
// update on its channel.
type Update[T any] struct {
	Value T
	Err   error
}

// Pipe hands values from a producer that must never block (a store callback)
// to a single consumer. Values are conflated: a consumer that falls behind
// receives only the most recent one. Fail records a terminal error that
// replaces any pending value; after it is delivered the channel is closed.
// The channel is also closed when the context passed to NewPipe is done.
type Pipe[T any] struct {
	mu       sync.Mutex
	pending  *Update[T]
	terminal bool

	wake chan struct{}
	out  chan Update[T]
	done chan struct{}
}

func NewPipe[T any](ctx context.Context) *Pipe[T] {
	p := &Pipe[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan Update[T]),
		done: make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

// C is the consumer side.
func (p *Pipe[T]) C() <-chan Update[T] { return p.out }

// Done is closed once the pipe has stopped delivering.
func (p *Pipe[T]) Done() <-chan struct{} { return p.done }

func (p *Pipe[T]) Send(v T) { p.put(Update[T]{Value: v}, false) }

func (p *Pipe[T]) Fail(err error) { p.put(Update[T]{Err: err}, true) }

func (p *Pipe[T]) put(u Update[T], terminal bool) {
	p.mu.Lock()
	if p.terminal {
		p.mu.Unlock()
		return
	}
	p.pending = &u
	p.terminal = terminal
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipe[T]) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		p.mu.Lock()
		u := p.pending
		p.pending = nil
		p.mu.Unlock()
		if u == nil {
			continue
		}

		select {
		case p.out <- *u:
		case <-ctx.Done():
			return
		}
		if u.Err != nil {
			return
		}
	}
}

// WatchFunc starts a callback subscription and returns the func that stops
// it. emit must be safe to call from any goroutine; an emit with a non-nil
// error ends the subscription.
type WatchFunc[T any] func(ctx context.Context, emit func(T, error)) (stop func())

// Subscribe runs watch and exposes its deliveries as a channel. The
// underlying subscription is stopped when ctx is done or after a terminal
// error has been received by the consumer.
func Subscribe[T any](ctx context.Context, watch WatchFunc[T]) <-chan Update[T] {
	ctx, cancel := context.WithCancel(ctx)
	p := NewPipe[T](ctx)
	stop := watch(ctx, func(v T, err error) {
		if err != nil {
			p.Fail(err)
			return
		}
		p.Send(v)
	})
	go func() {
		select {
		case <-ctx.Done():
		case <-p.Done():
		}
		cancel()
		stop()
	}()
	return p.C()
}
