// Package writer implements the batching engine: the single consumer that
// buffers formatted lines, splits them into bounded batches and POSTs them to
// the intake.
//
// An Engine is driven by exactly one goroutine calling Poll. Producers talk to
// it only through the LineSender and FlushSender returned by Senders:
//
//	engine, err := writer.New(cfg)
//	lines, flush := engine.Senders()
//	go engine.Poll(ctx)
//
//	_ = lines.Send("INFO [main] started")
//	err = flush.Flush() // waits for delivery
//
//	lines.Close()
//	flush.Close()
//	<-engine.Done() // drained and flushed one last time
package writer

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"golang.org/x/sync/errgroup"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/internal/batch"
	"github.com/hyp3rd/ddlogger/internal/compress"
	"github.com/hyp3rd/ddlogger/internal/queue"
	"github.com/hyp3rd/ddlogger/internal/transport"
	"github.com/hyp3rd/ddlogger/pkg/log"
)

// HTTPDoer is the subset of *http.Client the default sender needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender delivers one batch body.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Compressor renders one line into its wire form.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	Encoding() string
}

// State is the lifecycle stage of an Engine.
type State int32

const (
	// StateIdle means Poll has not been called yet.
	StateIdle State = iota
	// StateRunning means Poll is serving producers.
	StateRunning
	// StateDraining means a channel disconnected and the final flush is in progress.
	StateDraining
	// StateStopped means Poll returned.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHTTPClient sets the client used by the default sender.
func WithHTTPClient(client HTTPDoer) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithSender replaces the HTTP sender entirely.
func WithSender(sender Sender) Option {
	return func(e *Engine) {
		e.sender = sender
	}
}

// WithCompressor replaces the compressor derived from Config.Gzip.
func WithCompressor(compressor Compressor) Option {
	return func(e *Engine) {
		e.compressor = compressor
	}
}

// WithClock overrides the time source used for interval flushing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetricsHandler is called with a metrics snapshot after every flush,
// in addition to the handlers registered with ddlogger.RegisterMetricsHandler.
func WithMetricsHandler(handler ddlogger.MetricsHandler) Option {
	return func(e *Engine) {
		e.metricsHandler = handler
	}
}

// WithDropHandler is notified of every line dropped for size or because it
// could not be rendered.
func WithDropHandler(handler ddlogger.DropHandler) Option {
	return func(e *Engine) {
		e.dropHandler = handler
	}
}

// Engine is the consumer side of the pipeline.
type Engine struct {
	cfg            ddlogger.Config
	logger         log.Logger
	client         HTTPDoer
	sender         Sender
	compressor     Compressor
	builder        batch.Builder
	now            func() time.Time
	metricsHandler ddlogger.MetricsHandler
	dropHandler    ddlogger.DropHandler

	lines   *queue.Unbounded[string]
	flushes *queue.Rendezvous[struct{}, error]

	// owned by the Poll goroutine
	buffer      batch.Buffer
	lastFlushed time.Time

	state atomic.Int32
	done  chan struct{}

	enqueued      atomic.Uint64
	sent          atomic.Uint64
	dropped       atomic.Uint64
	batches       atomic.Uint64
	sendErrors    atomic.Uint64
	flushCount    atomic.Uint64
	bufferedLines atomic.Int64
	bufferedBytes atomic.Int64
}

// New validates cfg and builds an idle engine together with its channels.
func New(cfg ddlogger.Config, opts ...Option) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	cfg.Tags = append([]ddlogger.Tag(nil), cfg.Tags...)

	e := &Engine{
		cfg:     cfg,
		logger:  log.NewDefault(),
		now:     time.Now,
		lines:   queue.NewUnbounded[string](),
		flushes: queue.NewRendezvous[struct{}, error](),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.compressor == nil {
		e.compressor, err = compress.New(cfg.Gzip, cfg.CompressionLevel)
		if err != nil {
			return nil, ewrap.Wrap(ddlogger.ErrInvalidConfig, "building compressor").
				WithMetadata("cause", err.Error())
		}
	}

	if e.sender == nil {
		e.sender, err = transport.NewHTTPSender(e.client, cfg, e.compressor.Encoding())
		if err != nil {
			return nil, err
		}
	}

	e.builder = batch.Builder{
		MaxLineBytes:    cfg.MaxLineBytes,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		Compressor:      e.compressor,
	}

	return e, nil
}

// Senders returns the producer ends of the engine's channels.
func (e *Engine) Senders() (LineSender, FlushSender) {
	return LineSender{queue: e.lines}, FlushSender{rendezvous: e.flushes}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Done is closed when Poll returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Poll runs the engine until either producer channel disconnects or ctx is
// cancelled, then drains pending lines and flushes one last time. Cancelling
// ctx stops the loop but never aborts a flush that is already sending.
// Poll may be called only once.
func (e *Engine) Poll(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ewrap.Wrap(ddlogger.ErrEngineStarted, "poll called twice").
			WithMetadata("state", e.State().String())
	}

	defer close(e.done)

	e.lastFlushed = e.now()
	e.logger.Debug("engine running", log.String("service", e.cfg.Service))

	flushCtx := context.WithoutCancel(ctx)

	for e.step(ctx, flushCtx) {
	}

	e.stop(flushCtx)

	return nil
}

// step runs one iteration and reports whether the engine should keep running.
// ctx only decides when to leave the loop; flushes run under flushCtx.
func (e *Engine) step(ctx, flushCtx context.Context) bool {
	if ctx.Err() != nil {
		e.logger.Debug("engine context done", log.Err(ctx.Err()))

		return false
	}

	e.flushIfDue(flushCtx)

	// Waiting for a flush request after every received line would cap intake
	// at one line per half poll timeout, so a busy producer only gets flush
	// requests that are already waiting.
	flushWait := e.cfg.PollTimeout / 2

	line, err := e.lines.RecvTimeout(e.cfg.PollTimeout)

	switch {
	case err == nil:
		e.accept(line)
		e.flushIfFull(flushCtx)

		flushWait = 0
	case errors.Is(err, queue.ErrDisconnected):
		e.logger.Debug("line channel disconnected")

		return false
	}

	_, err = e.flushes.Receive(flushWait)

	switch {
	case err == nil:
		e.drain(flushCtx)
		e.flushes.Respond(e.flush(flushCtx))
	case errors.Is(err, queue.ErrDisconnected):
		e.logger.Debug("flush channel disconnected")

		return false
	}

	return true
}

func (e *Engine) stop(ctx context.Context) {
	e.state.Store(int32(StateDraining))

	// refuse new work before taking the last lines
	e.flushes.Stop()
	e.lines.CloseReceiver()

	e.drain(ctx)

	err := e.flush(ctx)
	if err != nil {
		e.logger.Error("final flush failed", log.Err(err))
	}

	e.state.Store(int32(StateStopped))
	e.logger.Debug("engine stopped",
		log.Uint64("sent", e.sent.Load()),
		log.Uint64("dropped", e.dropped.Load()))
}

func (e *Engine) accept(line string) {
	e.enqueued.Add(1)

	if len(line) > e.cfg.MaxLineBytes {
		e.dropped.Add(1)
		e.logger.Warn("dropping oversized log line",
			log.Int("bytes", len(line)),
			log.Int("max_line_bytes", e.cfg.MaxLineBytes))
		e.notifyDrop(ddlogger.DroppedLine{Reason: ddlogger.DropOversized, Line: line, Size: len(line)})

		return
	}

	e.buffer.Push(line)
	e.bufferedLines.Store(int64(e.buffer.Len()))
	e.bufferedBytes.Store(int64(e.buffer.Size()))
}

func (e *Engine) drain(ctx context.Context) {
	for _, line := range e.lines.Drain() {
		e.accept(line)
		e.flushIfFull(ctx)
	}
}

func (e *Engine) flushIfFull(ctx context.Context) {
	full := e.buffer.Size() >= e.cfg.MaxPayloadBytes ||
		(e.cfg.MaxLogLines > 0 && e.buffer.Len() >= e.cfg.MaxLogLines)
	if !full {
		return
	}

	err := e.flush(ctx)
	if err != nil {
		e.logger.Error("threshold flush failed", log.Err(err))
	}
}

func (e *Engine) flushIfDue(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 || e.now().Sub(e.lastFlushed) <= e.cfg.FlushInterval {
		return
	}

	err := e.flush(ctx)
	if err != nil {
		e.logger.Error("scheduled flush failed", log.Err(err))
	}
}

// flush sends every buffered line and empties the buffer whatever the outcome.
// Lines of failed batches are not retried.
func (e *Engine) flush(ctx context.Context) error {
	if e.buffer.Empty() {
		return nil
	}

	lines := e.buffer.Lines()
	result := e.builder.Build(lines)

	errs := make([]error, 0, len(result.Failed))

	for _, skipped := range result.Oversized {
		e.dropped.Add(1)
		e.logger.Warn("dropping log line larger than max line size after rendering",
			log.Int("bytes", skipped.Size),
			log.Int("max_line_bytes", e.cfg.MaxLineBytes))
		e.notifyDrop(ddlogger.DroppedLine{Reason: ddlogger.DropOversized, Line: lines[skipped.Index], Size: skipped.Size})
	}

	for _, skipped := range result.Failed {
		e.dropped.Add(1)
		e.logger.Error("dropping log line that could not be rendered", log.Err(skipped.Err))
		e.notifyDrop(ddlogger.DroppedLine{
			Reason: ddlogger.DropRenderFailed,
			Line:   lines[skipped.Index],
			Size:   skipped.Size,
			Err:    skipped.Err,
		})
		errs = append(errs, ewrap.Wrap(ddlogger.ErrIO, "rendering line").
			WithMetadata("index", skipped.Index).
			WithMetadata("cause", skipped.Err.Error()))
	}

	errs = append(errs, e.sendAll(ctx, result.Batches)...)

	e.buffer.Reset()
	e.bufferedLines.Store(0)
	e.bufferedBytes.Store(0)
	e.lastFlushed = e.now()
	e.flushCount.Add(1)

	e.reportMetrics(ctx)

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return ewrap.Wrap(errors.Join(errs...), "flush failed").
			WithMetadata("failures", len(errs))
	}
}

func (e *Engine) notifyDrop(dropped ddlogger.DroppedLine) {
	if e.dropHandler != nil {
		e.dropHandler(dropped)
	}
}

// sendAll POSTs batches concurrently and waits for all of them.
func (e *Engine) sendAll(ctx context.Context, batches []batch.Batch) []error {
	results := make([]error, len(batches))

	var group errgroup.Group
	if e.cfg.SendConcurrency > 0 {
		group.SetLimit(e.cfg.SendConcurrency)
	}

	for i, b := range batches {
		group.Go(func() error {
			err := e.sender.Send(ctx, b.Body)
			if err != nil {
				e.sendErrors.Add(1)
				e.dropped.Add(uint64(b.Lines))
				e.logger.Error("failed to send batch",
					log.Int("batch", i),
					log.Int("lines", b.Lines),
					log.Int("bytes", len(b.Body)),
					log.Err(err))

				results[i] = ewrap.Wrap(err, "batch failed").
					WithMetadata("batch", i).
					WithMetadata("lines", b.Lines)

				return nil
			}

			e.batches.Add(1)
			e.sent.Add(uint64(b.Lines))

			return nil
		})
	}

	_ = group.Wait()

	errs := results[:0]

	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Metrics returns a snapshot of the engine counters. Safe to call from any goroutine.
func (e *Engine) Metrics() ddlogger.Metrics {
	return ddlogger.Metrics{
		Enqueued:      e.enqueued.Load(),
		Sent:          e.sent.Load(),
		Dropped:       e.dropped.Load(),
		Batches:       e.batches.Load(),
		SendErrors:    e.sendErrors.Load(),
		Flushes:       e.flushCount.Load(),
		BufferedLines: int(e.bufferedLines.Load()),
		BufferedBytes: int(e.bufferedBytes.Load()),
	}
}

func (e *Engine) reportMetrics(ctx context.Context) {
	snapshot := e.Metrics()

	if e.metricsHandler != nil {
		e.metricsHandler(ctx, snapshot)
	}

	ddlogger.EmitMetrics(ctx, snapshot)
}
