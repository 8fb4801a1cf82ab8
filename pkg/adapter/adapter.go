// Package adapter is the producer side of the pipeline: the object a host
// logging framework calls for every record.
//
// An Adapter formats records and hands the lines to the batching engine over
// channels; it never performs network I/O itself, except that Flush waits
// for the engine to finish sending. All methods are safe for concurrent use.
//
// The simplest setup runs the engine on its own goroutine:
//
//	logs, engine, err := adapter.Spawn(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer func() {
//		logs.Close()
//		<-engine.Done()
//	}()
package adapter

import (
	"errors"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/log"
	"github.com/hyp3rd/ddlogger/pkg/writer"
)

// Adapter implements ddlogger.LogWriter on top of an engine's channels.
//
// It holds two independently locked slots: the line sender, locked briefly by
// every Write, and the flush sender, which a Flush holds for the whole
// round-trip. A second Flush arriving meanwhile fails with
// ddlogger.ErrLockContention instead of queueing. Shutdown empties both
// slots exactly once.
type Adapter struct {
	logger log.Logger

	lineMu sync.Mutex
	lines  *writer.LineSender

	flushMu sync.Mutex
	flush   *writer.FlushSender
}

// Ensure Adapter implements ddlogger.LogWriter.
var _ ddlogger.LogWriter = (*Adapter)(nil)

// New wraps the producer ends of an engine.
func New(lines writer.LineSender, flush writer.FlushSender, opts ...Option) *Adapter {
	o := buildOptions(opts)

	return &Adapter{
		logger: o.logger,
		lines:  &lines,
		flush:  &flush,
	}
}

// Write formats the record as "{LEVEL} [{module}] {message}" and queues it.
// It returns ddlogger.ErrAdapterShutdown after Shutdown and ddlogger.ErrChannel
// if the engine has stopped.
func (a *Adapter) Write(record ddlogger.Record) error {
	line := record.Format()

	a.lineMu.Lock()
	defer a.lineMu.Unlock()

	if a.lines == nil {
		return ewrap.Wrap(ddlogger.ErrAdapterShutdown, "write after shutdown")
	}

	return a.lines.Send(line)
}

// Flush asks the engine to drain everything queued so far, send it and report
// the outcome. It fails fast with ddlogger.ErrLockContention while another
// Flush on this adapter is in flight.
func (a *Adapter) Flush() error {
	if !a.flushMu.TryLock() {
		return ewrap.Wrap(ddlogger.ErrLockContention, "flush")
	}
	defer a.flushMu.Unlock()

	if a.flush == nil {
		return ewrap.Wrap(ddlogger.ErrAdapterShutdown, "flush after shutdown")
	}

	return a.flush.Flush()
}

// Shutdown flushes once, best effort, then disconnects the flush channel and
// the line channel, in that order. The engine drains and stops on its own.
// Calling it again is a no-op. Failures are logged, never returned.
func (a *Adapter) Shutdown() {
	err := a.Flush()

	switch {
	case err == nil, errors.Is(err, ddlogger.ErrAdapterShutdown):
	case errors.Is(err, ddlogger.ErrLockContention):
		a.logger.Warn("flush in progress during shutdown, waiting for it")
	default:
		a.logger.Warn("flush before shutdown failed", log.Err(err))
	}

	// blocks until a concurrent flush returns
	a.flushMu.Lock()
	if a.flush != nil {
		a.flush.Close()
		a.flush = nil
	}
	a.flushMu.Unlock()

	a.lineMu.Lock()
	if a.lines != nil {
		a.lines.Close()
		a.lines = nil
	}
	a.lineMu.Unlock()
}

// Close calls Shutdown. It exists so an Adapter can be deferred as an io.Closer.
func (a *Adapter) Close() error {
	a.Shutdown()

	return nil
}
