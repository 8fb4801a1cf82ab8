package adapter

import (
	"bytes"
	"io"
	"sync"

	"github.com/hyp3rd/ddlogger"
)

// Writer returns an io.Writer that turns every newline-terminated chunk into
// a Record with the given level and module. Empty lines are skipped and an
// unterminated tail waits for the next write. Pass it to log.SetOutput to ship
// the standard library logger.
func (a *Adapter) Writer(level ddlogger.Level, module string) io.Writer {
	return &lineWriter{adapter: a, level: level, module: module}
}

type lineWriter struct {
	adapter *Adapter
	level   ddlogger.Level
	module  string

	mu      sync.Mutex
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)

	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			return len(p), nil
		}

		message := string(bytes.TrimSuffix(w.pending[:idx], []byte{'\r'}))
		w.pending = append(w.pending[:0], w.pending[idx+1:]...)

		if message == "" {
			continue
		}

		err := w.adapter.Write(ddlogger.Record{Level: w.level, Module: w.module, Message: message})
		if err != nil {
			return 0, err
		}
	}
}
