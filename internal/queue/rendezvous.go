package queue

import (
	"sync"
	"time"
)

// Rendezvous is a zero-capacity request/response channel pair.
// A Call blocks until the receiver takes the request and answers it.
type Rendezvous[Req, Resp any] struct {
	requests  chan Req
	responses chan Resp
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
}

// NewRendezvous creates a connected pair.
func NewRendezvous[Req, Resp any]() *Rendezvous[Req, Resp] {
	return &Rendezvous[Req, Resp]{
		requests:  make(chan Req),
		responses: make(chan Resp),
		closed:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Call sends req and waits for the answer. It fails with ErrDisconnected if
// the sender side was closed or the receiver stopped.
func (r *Rendezvous[Req, Resp]) Call(req Req) (Resp, error) {
	var zero Resp

	select {
	case <-r.closed:
		return zero, ErrDisconnected
	default:
	}

	select {
	case r.requests <- req:
	case <-r.stopped:
		return zero, ErrDisconnected
	}

	select {
	case resp := <-r.responses:
		return resp, nil
	case <-r.stopped:
		return zero, ErrDisconnected
	}
}

// Receive waits up to timeout for a request. It returns ErrTimeout when none
// arrived and ErrDisconnected once the sender side is closed. A timeout of
// zero or less only checks for a request that is already waiting.
// Every received request must be answered with Respond.
func (r *Rendezvous[Req, Resp]) Receive(timeout time.Duration) (Req, error) {
	var zero Req

	if timeout <= 0 {
		select {
		case req := <-r.requests:
			return req, nil
		case <-r.closed:
			return zero, ErrDisconnected
		default:
			return zero, ErrTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case req := <-r.requests:
		return req, nil
	case <-r.closed:
		return zero, ErrDisconnected
	case <-timer.C:
		return zero, ErrTimeout
	}
}

// Respond delivers the answer to the pending Call.
func (r *Rendezvous[Req, Resp]) Respond(resp Resp) {
	r.responses <- resp
}

// Close marks the sender side as gone. Safe to call more than once.
func (r *Rendezvous[Req, Resp]) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Stop marks the receiver as gone and unblocks pending callers. Safe to call more than once.
func (r *Rendezvous[Req, Resp]) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}
