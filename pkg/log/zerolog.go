package log

import (
	"io"
	"os"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hyp3rd/ddlogger/internal/constants"
	"github.com/hyp3rd/ddlogger/internal/utils"
)

const (
	// DefaultRotationMaxSizeMB is the size a diagnostic file reaches before rotation.
	DefaultRotationMaxSizeMB = 50
	// DefaultRotationMaxBackups is the number of rotated files kept.
	DefaultRotationMaxBackups = 3
	// DefaultRotationMaxAgeDays is the age after which rotated files are removed.
	DefaultRotationMaxAgeDays = 7
)

// ZerologAdapter implements Logger using zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter writes JSON events at or above level to w.
func NewZerologAdapter(w io.Writer, level zerolog.Level) *ZerologAdapter {
	return &ZerologAdapter{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewZerologAdapterWithLogger wraps an existing zerolog.Logger.
func NewZerologAdapterWithLogger(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewConsole writes human-readable events to f, colored only when f is a terminal.
func NewConsole(f *os.File, level zerolog.Level) *ZerologAdapter {
	output := zerolog.ConsoleWriter{
		Out:        f,
		TimeFormat: time.RFC3339,
		NoColor:    !IsTerminal(f),
	}

	return NewZerologAdapterWithLogger(zerolog.New(output).Level(level).With().Timestamp().Logger())
}

// NewDefault is the logger the pipeline uses when none is configured:
// warnings and errors on stderr.
func NewDefault() Logger {
	return NewConsole(os.Stderr, zerolog.WarnLevel)
}

// NewWithDefaults picks settings from the environment name. The
// development environment gets debug-level console output; anything else
// gets info-level JSON on stderr.
func NewWithDefaults(environment string) Logger {
	if environment == constants.NonProductionEnvironment {
		return NewConsole(os.Stderr, zerolog.DebugLevel)
	}

	return NewZerologAdapter(os.Stderr, zerolog.InfoLevel)
}

// ParseLevel converts a level name such as "debug" or "warn".
func ParseLevel(name string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, ewrap.Wrap(err, "invalid diagnostic log level").
			WithMetadata("level", name)
	}

	return level, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RotationConfig controls the diagnostic log file rotation.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation returns the rotation settings used by the CLI.
func DefaultRotation() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  DefaultRotationMaxSizeMB,
		MaxBackups: DefaultRotationMaxBackups,
		MaxAgeDays: DefaultRotationMaxAgeDays,
		Compress:   true,
	}
}

// NewFileLogger writes JSON events to a rotating file. Relative paths are
// resolved against the working directory and may not escape it.
// Close the returned io.Closer on exit.
func NewFileLogger(path string, rotation RotationConfig, level zerolog.Level) (*ZerologAdapter, io.Closer, error) {
	base, err := os.Getwd()
	if err != nil {
		return nil, nil, ewrap.Wrap(err, "resolving working directory")
	}

	resolved, err := utils.SecurePath(base, path)
	if err != nil {
		return nil, nil, err
	}

	file := &lumberjack.Logger{
		Filename:   resolved,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	return NewZerologAdapter(file, level), file, nil
}

// Debug logs a debug-level message.
func (z *ZerologAdapter) Debug(msg string, fields ...Field) {
	emit(z.logger.Debug(), msg, fields)
}

// Info logs an info-level message.
func (z *ZerologAdapter) Info(msg string, fields ...Field) {
	emit(z.logger.Info(), msg, fields)
}

// Warn logs a warning-level message.
func (z *ZerologAdapter) Warn(msg string, fields ...Field) {
	emit(z.logger.Warn(), msg, fields)
}

// Error logs an error-level message.
func (z *ZerologAdapter) Error(msg string, fields ...Field) {
	emit(z.logger.Error(), msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []Field) {
	// nil when the level is disabled
	if event == nil {
		return
	}

	for _, f := range fields {
		event = addField(event, f)
	}

	event.Msg(msg)
}

func addField(event *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return event.Str(f.Key, v)
	case int:
		return event.Int(f.Key, v)
	case uint64:
		return event.Uint64(f.Key, v)
	case bool:
		return event.Bool(f.Key, v)
	case time.Duration:
		return event.Dur(f.Key, v)
	case error:
		return event.AnErr(f.Key, v)
	default:
		return event.Interface(f.Key, v)
	}
}
