package ddlogger

// NoopWriter is a LogWriter that discards everything.
// Useful when shipping is disabled, e.g. no API key is configured.
type NoopWriter struct{}

// NewNoop creates a new NoopWriter.
func NewNoop() LogWriter {
	return NoopWriter{}
}

// Ensure NoopWriter implements LogWriter.
var _ LogWriter = NoopWriter{}

// Write discards the record.
func (NoopWriter) Write(Record) error { return nil }

// Flush is a no-op.
func (NoopWriter) Flush() error { return nil }

// Shutdown is a no-op.
func (NoopWriter) Shutdown() {}
