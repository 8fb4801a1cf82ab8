// Package ddlogger ships application log records to a Datadog-compatible HTTP
// log intake.
//
// The pipeline has two halves connected by channels:
//
//   - a producer facade (see pkg/adapter) that a host logging framework calls
//     for every record. It formats the record and hands the line off without
//     doing any network I/O.
//   - a batching engine (see pkg/writer) driven by a single goroutine that
//     buffers lines, groups them into gzip-compressed batches bounded by size
//     and count, and POSTs them to the intake.
//
// Flushes happen when a threshold is reached, when the optional flush interval
// elapses, on explicit request from a producer and once more at shutdown.
//
// Basic usage:
//
//	cfg := ddlogger.NewConfigBuilder("web-01", "checkout", apiKey).
//		WithTags(ddlogger.Tag{Key: "env", Value: "prod"}).
//		Build()
//
//	writer, engine, err := adapter.Spawn(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer writer.Close()
//
//	_ = writer.Write(ddlogger.Record{Level: ddlogger.InfoLevel, Module: "main", Message: "started"})
//
// Always Close (or Shutdown) the adapter before exit so that buffered lines are
// delivered; wait on engine.Done() to observe the final flush.
package ddlogger

import "strings"

// Level represents the severity of a log record.
type Level uint8

const (
	// TraceLevel represents verbose debugging information.
	TraceLevel Level = iota
	// DebugLevel represents debugging information.
	DebugLevel
	// InfoLevel represents general operational information.
	InfoLevel
	// WarnLevel represents warning messages.
	WarnLevel
	// ErrorLevel represents error messages.
	ErrorLevel
	// FatalLevel represents fatal error messages.
	FatalLevel
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the given Level is a valid log level, and false otherwise.
func (l Level) IsValid() bool {
	return l <= FatalLevel
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return TraceLevel, nil
	case "DEBUG":
		return DebugLevel, nil
	case "INFO":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, ErrInvalidLevel
	}
}

// Record is a single log event produced by the host application.
type Record struct {
	Level   Level
	Module  string
	Message string
}

// Format renders the record as the line sent to the intake:
// "{LEVEL} [{module}] {message}". An empty module renders as "[]".
func (r Record) Format() string {
	var sb strings.Builder

	level := r.Level.String()
	sb.Grow(len(level) + len(r.Module) + len(r.Message) + 4)
	sb.WriteString(level)
	sb.WriteString(" [")
	sb.WriteString(r.Module)
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	return sb.String()
}

// LogWriter is the surface a host logging framework calls into.
// Implementations must be safe for concurrent use.
type LogWriter interface {
	// Write formats the record and queues it for delivery. It never performs network I/O.
	Write(record Record) error
	// Flush asks the engine to drain and send everything queued so far and waits for the result.
	Flush() error
	// Shutdown performs a best-effort final flush and releases the producer side of the pipeline.
	Shutdown()
}
