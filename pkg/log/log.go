// Package log is the diagnostic logger of the pipeline itself: dropped lines,
// failed sends and lifecycle events are reported here, never through the
// pipeline being diagnosed.
//
// The default implementation wraps zerolog:
//
//	logger := log.NewWithDefaults("development") // debug, human-readable on stderr
//	logger.Warn("line dropped", log.Int("bytes", n))
//
// NewFileLogger writes JSON into a size-rotated file instead.
package log

import "time"

// Logger provides structured diagnostic logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key-value pair attached to a diagnostic event.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
