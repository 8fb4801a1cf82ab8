package log

// NoopLogger discards every event.
type NoopLogger struct{}

// NewNoopLogger returns a Logger that does nothing.
func NewNoopLogger() Logger { return NoopLogger{} }

// Debug does nothing.
func (NoopLogger) Debug(string, ...Field) {}

// Info does nothing.
func (NoopLogger) Info(string, ...Field) {}

// Warn does nothing.
func (NoopLogger) Warn(string, ...Field) {}

// Error does nothing.
func (NoopLogger) Error(string, ...Field) {}
