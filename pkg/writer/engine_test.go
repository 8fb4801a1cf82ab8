package writer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/log"
)

const testLine = "DEBUG [] this is a test"

type received struct {
	query  url.Values
	header http.Header
	body   string
}

type intake struct {
	server   *httptest.Server
	status   atomic.Int32
	mu       sync.Mutex
	requests []received
}

func newIntake(t *testing.T) *intake {
	t.Helper()

	in := &intake{}
	in.status.Store(http.StatusAccepted)

	in.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reader io.Reader = r.Body

		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)

				return
			}

			reader = zr
		}

		body, err := io.ReadAll(reader)
		assert.NoError(t, err)

		in.mu.Lock()
		in.requests = append(in.requests, received{query: r.URL.Query(), header: r.Header.Clone(), body: string(body)})
		in.mu.Unlock()

		w.WriteHeader(int(in.status.Load()))
	}))
	t.Cleanup(in.server.Close)

	return in
}

func (in *intake) Requests() []received {
	in.mu.Lock()
	defer in.mu.Unlock()

	return append([]received(nil), in.requests...)
}

func (in *intake) Count() int {
	return len(in.Requests())
}

func testConfig(in *intake) *ddlogger.ConfigBuilder {
	return ddlogger.NewConfigBuilder("test_host", "test_service", "test_key").
		WithAPIHost(in.server.URL).
		WithTag("test_key", "test_value").
		WithPollTimeout(10 * time.Millisecond)
}

type running struct {
	engine *Engine
	lines  LineSender
	flush  FlushSender
}

func (r running) stop() {
	r.lines.Close()
	r.flush.Close()
	<-r.engine.Done()
}

func start(t *testing.T, in *intake, cfg ddlogger.Config, opts ...Option) running {
	t.Helper()

	base := []Option{WithLogger(log.NewNoopLogger()), WithHTTPClient(in.server.Client())}

	engine, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)

	lines, flush := engine.Senders()
	r := running{engine: engine, lines: lines, flush: flush}

	go func() {
		assert.NoError(t, engine.Poll(context.Background()))
	}()

	t.Cleanup(r.stop)

	return r
}

func TestNoSendBelowThresholds(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).Build())

	require.NoError(t, r.lines.Send(testLine))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, in.Count())

	r.stop()

	requests := in.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, testLine+"\n", requests[0].body)
}

func TestFlushSendsWireContract(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).Build())

	require.NoError(t, r.lines.Send(testLine))
	require.NoError(t, r.flush.Flush())

	requests := in.Requests()
	require.Len(t, requests, 1)

	got := requests[0]
	assert.Equal(t, testLine+"\n", got.body)
	assert.Equal(t, "test_host", got.query.Get("host"))
	assert.Equal(t, "test_service", got.query.Get("service"))
	assert.Equal(t, ddlogger.DefaultSource, got.query.Get("ddsource"))
	assert.Equal(t, "test_key:test_value", got.query.Get("ddtags"))
	assert.Equal(t, "test_key", got.header.Get("DD-API-KEY"))
	assert.Equal(t, "text/plain", got.header.Get("Content-Type"))
	assert.Equal(t, "gzip", got.header.Get("Content-Encoding"))
}

func TestFlushWithoutGzip(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).WithGzip(false).Build())

	require.NoError(t, r.lines.Send("a"))
	require.NoError(t, r.lines.Send("b"))
	require.NoError(t, r.flush.Flush())

	requests := in.Requests()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].header.Get("Content-Encoding"))
	assert.Equal(t, "a\nb\n", requests[0].body)
}

func TestFlushWithEmptyBufferSendsNothing(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).Build())

	require.NoError(t, r.flush.Flush())
	assert.Zero(t, in.Count())
}

func TestMaxPayloadSplitsBatches(t *testing.T) {
	in := newIntake(t)

	lines := []string{testLine + " 0", testLine + " 1", testLine + " 2"}
	cfg := testConfig(in).
		WithGzip(false).
		WithMaxPayloadBytes(len(lines[0]) + 1).
		Build()
	r := start(t, in, cfg)

	for _, line := range lines {
		require.NoError(t, r.lines.Send(line))
	}

	require.NoError(t, r.flush.Flush())

	requests := in.Requests()
	require.Len(t, requests, 3)

	bodies := make([]string, 0, len(requests))
	for _, req := range requests {
		bodies = append(bodies, req.body)
	}

	// batches of one flush are sent concurrently
	assert.ElementsMatch(t, []string{lines[0] + "\n", lines[1] + "\n", lines[2] + "\n"}, bodies)
}

func TestFlushInterval(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).WithFlushInterval(100*time.Millisecond).Build())

	require.NoError(t, r.lines.Send(testLine))

	time.Sleep(500 * time.Millisecond)

	require.Equal(t, 1, in.Count())
	assert.Equal(t, testLine+"\n", in.Requests()[0].body)
}

func TestMaxLogLinesTriggersFlush(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).WithMaxLogLines(2).Build())

	require.NoError(t, r.lines.Send("one"))
	require.NoError(t, r.lines.Send("two"))

	require.Eventually(t, func() bool { return in.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "one\ntwo\n", in.Requests()[0].body)
}

func TestPayloadSizeTriggersFlush(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).WithMaxPayloadBytes(8).Build())

	require.NoError(t, r.lines.Send("12345678"))

	require.Eventually(t, func() bool { return in.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

type dropRecorder struct {
	mu    sync.Mutex
	drops []ddlogger.DroppedLine
}

func (d *dropRecorder) handle(dropped ddlogger.DroppedLine) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.drops = append(d.drops, dropped)
}

func (d *dropRecorder) Drops() []ddlogger.DroppedLine {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]ddlogger.DroppedLine(nil), d.drops...)
}

func TestOversizedLineIsDropped(t *testing.T) {
	in := newIntake(t)
	drops := &dropRecorder{}
	r := start(t, in, testConfig(in).WithGzip(false).WithMaxLineBytes(10).Build(), WithDropHandler(drops.handle))

	require.NoError(t, r.lines.Send(strings.Repeat("x", 11)))
	require.NoError(t, r.lines.Send("small"))
	require.NoError(t, r.flush.Flush())

	requests := in.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "small\n", requests[0].body)

	metrics := r.engine.Metrics()
	assert.Equal(t, uint64(2), metrics.Enqueued)
	assert.Equal(t, uint64(1), metrics.Dropped)
	assert.Equal(t, uint64(1), metrics.Sent)

	assert.Equal(t, []ddlogger.DroppedLine{
		{Reason: ddlogger.DropOversized, Line: strings.Repeat("x", 11), Size: 11},
	}, drops.Drops())
}

func TestRenderedLineOverLimitIsDropped(t *testing.T) {
	in := newIntake(t)
	drops := &dropRecorder{}
	// "0123456789" fits raw, but the trailing newline makes it 11 bytes
	r := start(t, in, testConfig(in).WithGzip(false).WithMaxLineBytes(10).Build(), WithDropHandler(drops.handle))

	require.NoError(t, r.lines.Send("0123456789"))
	require.NoError(t, r.flush.Flush())

	assert.Zero(t, in.Count())
	require.Len(t, drops.Drops(), 1)
	assert.Equal(t, ddlogger.DropOversized, drops.Drops()[0].Reason)
	assert.Equal(t, "0123456789", drops.Drops()[0].Line)
	assert.Equal(t, 11, drops.Drops()[0].Size)
}

func TestSendFailureSurfacesAndClearsBuffer(t *testing.T) {
	in := newIntake(t)
	in.status.Store(http.StatusInternalServerError)

	r := start(t, in, testConfig(in).Build())

	require.NoError(t, r.lines.Send(testLine))

	err := r.flush.Flush()
	require.ErrorIs(t, err, ddlogger.ErrTransport)
	assert.Contains(t, err.Error(), "batch failed: intake returned status 500")

	in.status.Store(http.StatusAccepted)
	require.NoError(t, r.flush.Flush())
	assert.Equal(t, 1, in.Count(), "failed lines are not retried")

	metrics := r.engine.Metrics()
	assert.Equal(t, uint64(1), metrics.SendErrors)
	assert.Equal(t, uint64(1), metrics.Dropped)
	assert.Zero(t, metrics.BufferedLines)
}

type recordingSender struct {
	mu     sync.Mutex
	bodies []string
	fail   func(body string) error
}

func (s *recordingSender) Send(_ context.Context, body []byte) error {
	s.mu.Lock()
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()

	if s.fail != nil {
		return s.fail(string(body))
	}

	return nil
}

// paddingCompressor renders every line to a fixed width so that short raw
// lines still end up one per batch.
type paddingCompressor struct{ width int }

func (c paddingCompressor) Compress(p []byte) ([]byte, error) {
	return append(p, bytes.Repeat([]byte(" "), max(c.width-len(p), 0))...), nil
}

func (paddingCompressor) Encoding() string { return "" }

func TestMultipleBatchFailuresAreAggregated(t *testing.T) {
	in := newIntake(t)
	sender := &recordingSender{fail: func(body string) error {
		if strings.HasPrefix(body, "keep") {
			return nil
		}

		return ddlogger.ErrTransport
	}}

	cfg := testConfig(in).WithMaxPayloadBytes(15).Build()
	r := start(t, in, cfg, WithSender(sender), WithCompressor(paddingCompressor{width: 10}))

	for _, line := range []string{"bad1", "keep", "bad2"} {
		require.NoError(t, r.lines.Send(line))
	}

	err := r.flush.Flush()
	require.ErrorIs(t, err, ddlogger.ErrTransport)
	assert.Contains(t, err.Error(), "flush failed")

	sender.mu.Lock()
	assert.Len(t, sender.bodies, 3)
	sender.mu.Unlock()

	metrics := r.engine.Metrics()
	assert.Equal(t, uint64(2), metrics.SendErrors)
	assert.Equal(t, uint64(1), metrics.Batches)
	assert.Equal(t, uint64(2), metrics.Dropped)
}

type failingCompressor struct{}

func (failingCompressor) Compress([]byte) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingCompressor) Encoding() string { return "" }

func TestRenderFailureIsIOError(t *testing.T) {
	in := newIntake(t)
	drops := &dropRecorder{}
	r := start(t, in, testConfig(in).Build(), WithCompressor(failingCompressor{}), WithDropHandler(drops.handle))

	require.NoError(t, r.lines.Send(testLine))
	require.ErrorIs(t, r.flush.Flush(), ddlogger.ErrIO)
	assert.Zero(t, in.Count())

	require.Len(t, drops.Drops(), 1)
	assert.Equal(t, ddlogger.DropRenderFailed, drops.Drops()[0].Reason)
	assert.Equal(t, testLine, drops.Drops()[0].Line)
	require.Error(t, drops.Drops()[0].Err)
}

func TestFinalFlushOnDisconnect(t *testing.T) {
	for _, tc := range []struct {
		name       string
		disconnect func(running)
	}{
		{name: "line sender closed", disconnect: func(r running) { r.lines.Close() }},
		{name: "flush sender closed", disconnect: func(r running) { r.flush.Close() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := newIntake(t)
			r := start(t, in, testConfig(in).Build())

			require.NoError(t, r.lines.Send("first"))
			require.NoError(t, r.lines.Send("second"))

			tc.disconnect(r)

			select {
			case <-r.engine.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("engine did not stop")
			}

			assert.Equal(t, StateStopped, r.engine.State())

			requests := in.Requests()
			require.Len(t, requests, 1)
			assert.Equal(t, "first\nsecond\n", requests[0].body)

			require.ErrorIs(t, r.lines.Send("late"), ddlogger.ErrChannel)
			require.ErrorIs(t, r.flush.Flush(), ddlogger.ErrChannel)
		})
	}
}

func TestContextCancelStillFlushes(t *testing.T) {
	in := newIntake(t)

	engine, err := New(testConfig(in).Build(), WithLogger(log.NewNoopLogger()), WithHTTPClient(in.server.Client()))
	require.NoError(t, err)

	lines, _ := engine.Senders()
	require.NoError(t, lines.Send(testLine))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, engine.Poll(ctx))
	assert.Equal(t, 1, in.Count())
}

func TestCancelDuringFlushDoesNotAbortSend(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})

	var bodies atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		close(arrived)
		<-release
		bodies.Add(1)

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	cfg := ddlogger.NewConfigBuilder("test_host", "test_service", "test_key").
		WithAPIHost(server.URL).
		WithPollTimeout(10 * time.Millisecond).
		Build()

	engine, err := New(cfg, WithLogger(log.NewNoopLogger()), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	lines, flush := engine.Senders()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		assert.NoError(t, engine.Poll(ctx))
	}()

	require.NoError(t, lines.Send(testLine))

	flushed := make(chan error, 1)

	go func() { flushed <- flush.Flush() }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("intake never saw the batch")
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-flushed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not return")
	}

	<-engine.Done()

	metrics := engine.Metrics()
	assert.Equal(t, uint64(1), metrics.Sent)
	assert.Zero(t, metrics.Dropped)
	assert.Zero(t, metrics.SendErrors)
	assert.Equal(t, int32(1), bodies.Load())
}

func TestPollOnlyOnce(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).Build())

	require.Eventually(t, func() bool { return r.engine.State() == StateRunning }, time.Second, time.Millisecond)
	require.ErrorIs(t, r.engine.Poll(context.Background()), ddlogger.ErrEngineStarted)
}

func TestMetricsHandler(t *testing.T) {
	in := newIntake(t)

	var (
		mu   sync.Mutex
		seen []ddlogger.Metrics
	)

	handler := func(_ context.Context, m ddlogger.Metrics) {
		mu.Lock()
		seen = append(seen, m)
		mu.Unlock()
	}

	r := start(t, in, testConfig(in).Build(), WithMetricsHandler(handler))

	require.NoError(t, r.lines.Send(testLine))
	require.NoError(t, r.flush.Flush())

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, seen, 1)
	assert.Equal(t, uint64(1), seen[0].Sent)
	assert.Equal(t, uint64(1), seen[0].Batches)
	assert.Equal(t, uint64(1), seen[0].Flushes)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := ddlogger.DefaultConfig()
	cfg.MaxPayloadBytes = 0

	_, err := New(cfg)
	require.ErrorIs(t, err, ddlogger.ErrInvalidConfig)
}

func TestConcurrentProducers(t *testing.T) {
	in := newIntake(t)
	r := start(t, in, testConfig(in).WithGzip(false).Build())

	var wg sync.WaitGroup

	for p := range 4 {
		wg.Go(func() {
			for i := range 25 {
				assert.NoError(t, r.lines.Send(strings.Repeat("p", p+1)+strings.Repeat("i", i%3)))
			}
		})
	}

	wg.Wait()
	require.NoError(t, r.flush.Flush())

	var total int
	for _, req := range in.Requests() {
		total += bytes.Count([]byte(req.body), []byte("\n"))
	}

	assert.Equal(t, 100, total)
}
