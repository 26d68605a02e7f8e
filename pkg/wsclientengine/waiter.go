package wsclientengine

import (
	"context"
	"sync"
	"time"
)

/*************************************************************************************************/
/* WAITER                                                                                        */
/*************************************************************************************************/

// Single use synchronization primitive: consumers block until exactly one value or one error is
// delivered. Deliveries after the first one are ignored.
type Waiter[T any] struct {
	// Closed once a value or an error has been delivered
	done chan struct{}
	// Guards the single delivery
	once sync.Once
	// Delivered value
	value T
	// Delivered error
	err error
}

// Factory - Return a new, pending waiter.
func NewWaiter[T any]() *Waiter[T] {
	return &Waiter[T]{done: make(chan struct{})}
}

// # Description
//
// Deliver a value to the waiter.
//
// # Returns
//
// True if the value has been delivered, false if the waiter was already resolved.
func (w *Waiter[T]) Notify(value T) bool {
	delivered := false
	w.once.Do(func() {
		w.value = value
		close(w.done)
		delivered = true
	})
	return delivered
}

// # Description
//
// Deliver an error to the waiter.
//
// # Returns
//
// True if the error has been delivered, false if the waiter was already resolved.
func (w *Waiter[T]) Fail(err error) bool {
	delivered := false
	w.once.Do(func() {
		w.err = err
		close(w.done)
		delivered = true
	})
	return delivered
}

// # Description
//
// Block until the waiter is resolved or until ctx is done.
//
// # Returns
//
// The delivered value or error. A TimeoutError is returned when the ctx deadline expires, the
// context error when ctx is canceled. A delivery which happens concurrently with ctx expiry
// takes precedence.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	start := time.Now()
	select {
	case <-w.done:
		return w.value, w.err
	case <-ctx.Done():
		select {
		case <-w.done:
			return w.value, w.err
		default:
			var zero T
			return zero, waitError(ctx, start)
		}
	}
}

// Channel closed once the waiter is resolved
func (w *Waiter[T]) Done() <-chan struct{} {
	return w.done
}

/*************************************************************************************************/
/* WAITER REGISTRY                                                                               */
/*************************************************************************************************/

// Ordered collection of pending waiters.
//
// Registration and notification are serialized by the same mutex: a waiter is either registered
// before a notification and receives it, or registered after and waits for the next one.
type waiterRegistry[T any] struct {
	mu sync.Mutex
	// Pending waiters
	waiters []*Waiter[T]
	// When true, the first notification is kept and satisfies later registrations
	latch bool
	// Whether the registry has been resolved (latched value or failure)
	resolved bool
	// Latched value
	value T
	// Failure delivered to later registrations
	err error
}

// Factory
func newWaiterRegistry[T any](latch bool) *waiterRegistry[T] {
	return &waiterRegistry[T]{latch: latch}
}

// Register a new waiter. The waiter is already resolved if the registry is.
func (r *waiterRegistry[T]) register() *Waiter[T] {
	w := NewWaiter[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		if r.err != nil {
			w.Fail(r.err)
		} else {
			w.Notify(r.value)
		}
		return w
	}
	r.waiters = append(r.waiters, w)
	return w
}

// Remove a waiter abandoned by its consumer.
func (r *waiterRegistry[T]) unregister(w *Waiter[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.waiters {
		if candidate == w {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// Notify all pending waiters with value and clear the registry. Return the number of notified
// waiters. A failed registry ignores notifications.
func (r *waiterRegistry[T]) notifyAll(value T) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return 0
	}
	if r.latch {
		r.resolved = true
		r.value = value
	}
	count := 0
	for _, w := range r.waiters {
		if w.Notify(value) {
			count++
		}
	}
	r.waiters = nil
	return count
}

// Fail all pending and future waiters with err. No-op if the registry is already resolved.
func (r *waiterRegistry[T]) failAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}
	r.resolved = true
	r.err = err
	for _, w := range r.waiters {
		w.Fail(err)
	}
	r.waiters = nil
}

// Number of pending waiters
func (r *waiterRegistry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
