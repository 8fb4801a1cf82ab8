package ddlogger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsHandler(t *testing.T) {
	ClearMetricsHandlers()
	t.Cleanup(ClearMetricsHandlers)

	var got []Metrics

	RegisterMetricsHandler(nil)
	RegisterMetricsHandler(func(_ context.Context, m Metrics) { got = append(got, m) })

	EmitMetrics(context.Background(), Metrics{Sent: 3})

	assert.Equal(t, []Metrics{{Sent: 3}}, got)

	ClearMetricsHandlers()
	EmitMetrics(context.Background(), Metrics{Sent: 4})
	assert.Len(t, got, 1)
}

func TestMetricsExporter(t *testing.T) {
	exporter := NewMetricsExporter()

	exporter.Observe(context.Background(), Metrics{
		Enqueued:      10,
		Sent:          7,
		Dropped:       2,
		Batches:       3,
		SendErrors:    1,
		Flushes:       4,
		BufferedLines: 1,
		BufferedBytes: 42,
	})

	rec := httptest.NewRecorder()
	exporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()

	for _, metric := range []string{
		"ddlogger_engine_enqueued_total 10",
		"ddlogger_engine_sent_total 7",
		"ddlogger_engine_dropped_total 2",
		"ddlogger_engine_batches_total 3",
		"ddlogger_engine_send_errors_total 1",
		"ddlogger_engine_flushes_total 4",
		"ddlogger_engine_buffered_lines 1",
		"ddlogger_engine_buffered_bytes 42",
		"# TYPE ddlogger_engine_buffered_bytes gauge",
	} {
		assert.Contains(t, body, metric)
	}

	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Equal(t, uint64(7), exporter.Snapshot().Sent)
}
