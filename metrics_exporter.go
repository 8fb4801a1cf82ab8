package ddlogger

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

const metricsNamespace = "ddlogger_engine"

// MetricsExporter exposes the latest engine metrics in Prometheus text format.
// Register Observe with RegisterMetricsHandler (or pass it to the engine) to start collecting.
type MetricsExporter struct {
	mu     sync.RWMutex
	latest Metrics
}

// NewMetricsExporter creates a new exporter instance.
func NewMetricsExporter() *MetricsExporter {
	return &MetricsExporter{}
}

// Observe records a snapshot. Its signature matches MetricsHandler.
func (e *MetricsExporter) Observe(_ context.Context, metrics Metrics) {
	e.mu.Lock()
	e.latest = metrics
	e.mu.Unlock()
}

// Snapshot returns the last observed metrics.
func (e *MetricsExporter) Snapshot() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.latest
}

type metricLine struct {
	name  string
	kind  string
	help  string
	value uint64
}

// ServeHTTP renders the metrics using the Prometheus exposition format.
func (e *MetricsExporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	m := e.Snapshot()

	lines := []metricLine{
		{"enqueued_total", "counter", "Total lines received from producers", m.Enqueued},
		{"sent_total", "counter", "Total lines delivered to the intake", m.Sent},
		{"dropped_total", "counter", "Total lines dropped", m.Dropped},
		{"batches_total", "counter", "Total batches accepted by the intake", m.Batches},
		{"send_errors_total", "counter", "Total failed batch sends", m.SendErrors},
		{"flushes_total", "counter", "Total non-empty flushes", m.Flushes},
		{"buffered_lines", "gauge", "Lines waiting for the next flush", uint64(max(m.BufferedLines, 0))},
		{"buffered_bytes", "gauge", "Bytes waiting for the next flush", uint64(max(m.BufferedBytes, 0))},
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, line := range lines {
		name := metricsNamespace + "_" + line.name
		fmt.Fprintf(w, "# HELP %s %s\n", name, line.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, line.kind)
		fmt.Fprintf(w, "%s %d\n", name, line.value)
	}
}
