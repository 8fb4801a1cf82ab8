package writer

import (
	"errors"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/internal/queue"
)

// LineSender is the producer end of the line channel. Sends never block.
type LineSender struct {
	queue *queue.Unbounded[string]
}

// Send queues a formatted line. It fails with ddlogger.ErrChannel once the
// engine stopped receiving.
func (s LineSender) Send(line string) error {
	if s.queue == nil {
		return ewrap.Wrap(ddlogger.ErrChannel, "line sender not connected")
	}

	err := s.queue.Send(line)
	if err != nil {
		return ewrap.Wrap(ddlogger.ErrChannel, "sending line to engine")
	}

	return nil
}

// Close disconnects the producer side. The engine drains what is queued and stops.
func (s LineSender) Close() {
	if s.queue != nil {
		s.queue.Close()
	}
}

// FlushSender is the producer end of the flush rendezvous.
type FlushSender struct {
	rendezvous *queue.Rendezvous[struct{}, error]
}

// Flush asks the engine to drain and send everything queued so far and waits
// for the result. It fails with ddlogger.ErrChannel if the engine is gone.
func (s FlushSender) Flush() error {
	if s.rendezvous == nil {
		return ewrap.Wrap(ddlogger.ErrChannel, "flush sender not connected")
	}

	result, err := s.rendezvous.Call(struct{}{})
	if errors.Is(err, queue.ErrDisconnected) {
		return ewrap.Wrap(ddlogger.ErrChannel, "engine unavailable for flush")
	}

	return result
}

// Close disconnects the flush channel; the engine then drains and stops.
func (s FlushSender) Close() {
	if s.rendezvous != nil {
		s.rendezvous.Close()
	}
}
