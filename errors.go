package ddlogger

import "github.com/hyp3rd/ewrap"

// Error taxonomy shared by every package of the pipeline. Call sites wrap these
// with ewrap and attach metadata; match them with errors.Is.
var (
	// ErrTransport is returned when an HTTP request to the intake fails or gets a non-2xx response.
	ErrTransport = ewrap.New("transport error")

	// ErrIO is returned when compressing or serializing a line fails.
	ErrIO = ewrap.New("i/o error")

	// ErrLockContention is returned when another flush is already in progress on the same adapter.
	ErrLockContention = ewrap.New("flush already in progress")

	// ErrAdapterShutdown is returned when the adapter has already been shut down.
	ErrAdapterShutdown = ewrap.New("adapter is shut down")

	// ErrChannel is returned when the engine side of a channel is gone.
	ErrChannel = ewrap.New("channel disconnected")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = ewrap.New("invalid configuration")

	// ErrInvalidLevel is returned by ParseLevel for unknown level names.
	ErrInvalidLevel = ewrap.New("invalid log level")

	// ErrInvalidTag is returned by ParseTag when the input is not key:value.
	ErrInvalidTag = ewrap.New("invalid tag")

	// ErrEngineStarted is returned when Poll is called on an engine that already ran.
	ErrEngineStarted = ewrap.New("engine already started")
)
