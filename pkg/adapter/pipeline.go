package adapter

import (
	"context"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/log"
	"github.com/hyp3rd/ddlogger/pkg/writer"
)

// Option configures NewPipeline, Spawn and New.
type Option func(*options)

type options struct {
	logger     log.Logger
	engineOpts []writer.Option
}

// WithLogger sets the diagnostic logger of both the adapter and its engine.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger == nil {
			return
		}

		o.logger = logger
		o.engineOpts = append(o.engineOpts, writer.WithLogger(logger))
	}
}

// WithEngineOptions forwards options to writer.New.
func WithEngineOptions(opts ...writer.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: log.NewDefault()}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// NewPipeline validates cfg and returns a connected adapter and engine.
// The caller must run engine.Poll on a goroutine of its choice.
func NewPipeline(cfg ddlogger.Config, opts ...Option) (*Adapter, *writer.Engine, error) {
	o := buildOptions(opts)

	engine, err := writer.New(cfg, o.engineOpts...)
	if err != nil {
		return nil, nil, err
	}

	lines, flush := engine.Senders()

	return New(lines, flush, opts...), engine, nil
}

// Spawn builds a pipeline and starts the engine on a new goroutine. When ctx
// is done the adapter is shut down, which makes the engine drain, flush one
// last time and stop; wait on engine.Done() to observe it.
func Spawn(ctx context.Context, cfg ddlogger.Config, opts ...Option) (*Adapter, *writer.Engine, error) {
	a, engine, err := NewPipeline(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		// shutdown is driven through the adapter, not by cancelling Poll
		err := engine.Poll(context.WithoutCancel(ctx))
		if err != nil {
			a.logger.Error("engine poll failed", log.Err(err))
		}
	}()

	context.AfterFunc(ctx, a.Shutdown)

	return a, engine, nil
}
