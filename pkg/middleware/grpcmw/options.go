package grpcmw

import (
	"time"

	"github.com/hyp3rd/ddlogger/internal/constants"
)

const defaultModule = "grpc"

// Option defines a configuration option for the gRPC interceptors.
type Option func(*options)

type options struct {
	module     string
	requestKey string
	onError    func(error)
	now        func() time.Time
}

// WithModule sets the module of the emitted records. Defaults to "grpc".
func WithModule(module string) Option {
	return func(o *options) {
		if o == nil || module == "" {
			return
		}

		o.module = module
	}
}

// WithRequestKey customizes the metadata key used to read the request identifier.
func WithRequestKey(name string) Option {
	return func(o *options) {
		if o == nil || name == "" {
			return
		}

		o.requestKey = name
	}
}

// WithErrorHandler receives LogWriter failures, which are otherwise ignored.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if o == nil || fn == nil {
			return
		}

		o.onError = fn
	}
}

func buildOptions(opts []Option) options {
	cfg := options{
		module:     defaultModule,
		requestKey: constants.RequestIDMetadataKey,
		onError:    func(error) {},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
