package ddlogger

import (
	"context"
	"sync"

	"github.com/hyp3rd/ddlogger/internal/constants"
)

// Metrics is a snapshot of a batching engine's counters.
type Metrics struct {
	// Enqueued counts lines received from producers.
	Enqueued uint64
	// Sent counts lines delivered in successful batches.
	Sent uint64
	// Dropped counts oversized and unrenderable lines plus lines of failed batches.
	Dropped uint64
	// Batches counts successful POSTs.
	Batches uint64
	// SendErrors counts failed POSTs.
	SendErrors uint64
	// Flushes counts non-empty flushes.
	Flushes uint64
	// BufferedLines is the number of lines waiting for the next flush.
	BufferedLines int
	// BufferedBytes is the raw size of the buffered lines.
	BufferedBytes int
}

// MetricsHandler receives engine metrics after every flush.
type MetricsHandler func(context.Context, Metrics)

//nolint:gochecknoglobals // metrics use a package-level registry for global handlers.
var metricsRegistry = sync.OnceValue(func() *metricsHandlerRegistry {
	return &metricsHandlerRegistry{}
})

// RegisterMetricsHandler adds a global handler invoked whenever an engine emits metrics.
func RegisterMetricsHandler(handler MetricsHandler) {
	if handler == nil {
		return
	}

	metricsRegistry().register(handler)
}

// ClearMetricsHandlers removes all registered handlers.
func ClearMetricsHandlers() {
	metricsRegistry().reset()
}

// EmitMetrics notifies global handlers with the provided snapshot.
func EmitMetrics(ctx context.Context, metrics Metrics) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	metricsRegistry().emit(ctx, metrics)
}

type metricsHandlerRegistry struct {
	mu       sync.RWMutex
	handlers []MetricsHandler
}

func (r *metricsHandlerRegistry) register(handler MetricsHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

func (r *metricsHandlerRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = nil
}

func (r *metricsHandlerRegistry) emit(ctx context.Context, metrics Metrics) {
	r.mu.RLock()
	handlers := append([]MetricsHandler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, metrics)
	}
}
