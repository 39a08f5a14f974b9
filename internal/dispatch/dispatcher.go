// Package dispatch runs functions on a single owner goroutine.
//
// State that must only be touched from one thread (the host's UI thread in
// a desktop host, the simulated device state here) is mutated exclusively
// inside functions passed to Invoke. The Dispatcher executes them one at a
// time in FIFO order on the goroutine running Run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopped is returned by Invoke once Run has returned.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

type call struct {
	fn   func() error
	done chan error
}

// Dispatcher serialises functions onto one goroutine.
type Dispatcher struct {
	queue   chan call
	stopped chan struct{}
}

// New creates a dispatcher with room for queue pending calls.
func New(queue int) *Dispatcher {
	if queue < 1 {
		queue = 1
	}
	return &Dispatcher{
		queue:   make(chan call, queue),
		stopped: make(chan struct{}),
	}
}

// Run executes queued functions until ctx is cancelled. It must be called
// exactly once.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.queue:
			c.done <- runSafely(c.fn)
		}
	}
}

// Invoke runs fn on the dispatcher goroutine and returns its error. If ctx
// ends first, Invoke returns ctx.Err(); fn may still run later.
func (d *Dispatcher) Invoke(ctx context.Context, fn func() error) error {
	c := call{fn: fn, done: make(chan error, 1)}

	select {
	case d.queue <- c:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.done:
		return err
	case <-d.stopped:
		select {
		case err := <-c.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed when Run returns.
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.stopped
}

func runSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatched function panicked: %v", r)
		}
	}()
	return fn()
}
