// Package httpmw ships one access-log record per HTTP request through a
// ddlogger.LogWriter.
package httpmw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/internal/constants"
)

const (
	randomIDLength = 16
	defaultModule  = "http"
)

type requestIDKey struct{}

// Option configures the behaviour of AccessLog.
type Option func(*options)

type options struct {
	module         string
	requestHeader  string
	includeHeaders []string
	idGenerator    func() string
	generateIfMiss bool
	onError        func(error)
	now            func() time.Time
}

// WithModule sets the module of the emitted records. Defaults to "http".
func WithModule(module string) Option {
	return func(o *options) {
		if module != "" {
			o.module = module
		}
	}
}

// WithRequestHeader configures the header used to read and echo the request id.
func WithRequestHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.requestHeader = name
		}
	}
}

// WithIncludeHeaders appends the named request headers to every record.
func WithIncludeHeaders(names ...string) Option {
	return func(o *options) {
		o.includeHeaders = append(o.includeHeaders, names...)
	}
}

// WithIDGenerator provides a custom generator used when the header is missing.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.idGenerator = fn
		}
	}
}

// WithGenerateMissingIDs instructs the middleware to create ids when the header is absent.
func WithGenerateMissingIDs(enable bool) Option {
	return func(o *options) {
		o.generateIfMiss = enable
	}
}

// WithErrorHandler receives LogWriter failures. They are ignored by default:
// a request never fails because its log line could not be queued.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// RequestIDFromContext returns the id AccessLog attached to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)

	return id
}

// AccessLog writes "METHOD /path STATUS LATENCY key=value..." for every
// request once the handler returns. Server errors are logged at ErrorLevel,
// client errors at WarnLevel, everything else at InfoLevel.
func AccessLog(writer ddlogger.LogWriter, opts ...Option) func(http.Handler) http.Handler {
	cfg := options{
		module:         defaultModule,
		requestHeader:  constants.RequestIDHeader,
		idGenerator:    randomID,
		generateIfMiss: true,
		onError:        func(error) {},
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(cfg.requestHeader)
			if requestID == "" && cfg.generateIfMiss {
				requestID = cfg.idGenerator()
			}

			if requestID != "" {
				w.Header().Set(cfg.requestHeader, requestID)
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))
			}

			recorder := &responseWriter{ResponseWriter: w}
			start := cfg.now()

			next.ServeHTTP(recorder, r)

			status := recorder.Status()
			record := ddlogger.Record{
				Level:   levelFor(status),
				Module:  cfg.module,
				Message: message(r, status, cfg.now().Sub(start), requestID, cfg.includeHeaders),
			}

			err := writer.Write(record)
			if err != nil {
				cfg.onError(err)
			}
		})
	}
}

func levelFor(status int) ddlogger.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return ddlogger.ErrorLevel
	case status >= http.StatusBadRequest:
		return ddlogger.WarnLevel
	default:
		return ddlogger.InfoLevel
	}
}

func message(r *http.Request, status int, latency time.Duration, requestID string, headers []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %d %s remote=%s", r.Method, r.URL.RequestURI(), status, latency, remoteAddr(r))

	if requestID != "" {
		b.WriteString(" request_id=" + requestID)
	}

	for _, header := range headers {
		if value := r.Header.Get(header); value != "" {
			b.WriteString(" " + strings.ToLower(header) + "=" + value)
		}
	}

	return b.String()
}

func remoteAddr(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")

		return strings.TrimSpace(first)
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	return r.RemoteAddr
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.status == 0 {
		rw.status = statusCode
	}

	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}

	return rw.ResponseWriter.Write(p)
}

func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}

	return rw.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func randomID() string {
	bytes := make([]byte, randomIDLength)

	_, err := rand.Read(bytes)
	if err != nil {
		return ""
	}

	return hex.EncodeToString(bytes)
}
