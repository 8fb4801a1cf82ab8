// Package queue provides the two channels connecting producers to the batching
// engine: an unbounded multi-producer line queue and a zero-capacity
// request/response rendezvous.
package queue

import (
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
)

var (
	// ErrTimeout is returned when nothing arrived within the receive timeout.
	ErrTimeout = ewrap.New("receive timed out")
	// ErrDisconnected is returned when the other side of the channel is gone.
	ErrDisconnected = ewrap.New("channel disconnected")
)

// Unbounded is a FIFO queue that never blocks senders.
// Any number of goroutines may Send; a single consumer receives.
type Unbounded[T any] struct {
	mu           sync.Mutex
	items        []T
	notify       chan struct{}
	closed       bool
	receiverGone bool
}

// NewUnbounded creates an empty queue.
func NewUnbounded[T any]() *Unbounded[T] {
	return &Unbounded[T]{notify: make(chan struct{}, 1)}
}

// Send enqueues v. It fails with ErrDisconnected once the sender side was
// closed or the receiver went away.
func (q *Unbounded[T]) Send(v T) error {
	q.mu.Lock()

	if q.closed || q.receiverGone {
		q.mu.Unlock()

		return ErrDisconnected
	}

	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()

	return nil
}

// RecvTimeout returns the oldest item, waiting up to timeout for one to arrive.
// It returns ErrTimeout if nothing arrived and ErrDisconnected once the sender
// side is closed and the queue is empty.
func (q *Unbounded[T]) RecvTimeout(timeout time.Duration) (T, error) {
	var timer *time.Timer

	for {
		v, ok, closed := q.pop()
		if ok {
			if timer != nil {
				timer.Stop()
			}

			return v, nil
		}

		if closed {
			if timer != nil {
				timer.Stop()
			}

			return v, ErrDisconnected
		}

		if timer == nil {
			timer = time.NewTimer(timeout)
		}

		select {
		case <-q.notify:
		case <-timer.C:
			var zero T

			return zero, ErrTimeout
		}
	}
}

// Drain removes and returns every queued item without blocking.
func (q *Unbounded[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil

	return items
}

// Len returns the number of queued items.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Close marks the sender side as gone. Queued items stay receivable.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

// CloseReceiver marks the receiver as gone; further sends fail.
func (q *Unbounded[T]) CloseReceiver() {
	q.mu.Lock()
	q.receiverGone = true
	q.mu.Unlock()
}

func (q *Unbounded[T]) pop() (v T, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false, q.closed
	}

	v = q.items[0]

	var zero T

	q.items[0] = zero
	q.items = q.items[1:]

	return v, true, false
}

func (q *Unbounded[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
