// Package compress turns rendered log lines into the bytes placed on the wire.
package compress

import (
	"bytes"
	"compress/gzip"
	"sync"

	"github.com/hyp3rd/ewrap"
)

// ErrCompressionFailed is returned when a compression operation fails.
var ErrCompressionFailed = ewrap.New("compression failed")

// Compressor transforms one rendered line into its wire form.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	// Encoding is the Content-Encoding value, empty for identity.
	Encoding() string
}

// Identity passes bytes through unchanged.
type Identity struct{}

// Compress returns p as-is.
func (Identity) Compress(p []byte) ([]byte, error) { return p, nil }

// Encoding returns the empty string.
func (Identity) Encoding() string { return "" }

// Gzip produces one complete gzip member per call. Members concatenate into a
// valid multi-member gzip stream, so a batch body is just the members back to back.
type Gzip struct {
	level   int
	writers sync.Pool
	buffers sync.Pool
}

// NewGzip creates a gzip compressor at the given compress/gzip level.
func NewGzip(level int) (*Gzip, error) {
	// validate the level once so pooled writers never fail to construct
	_, err := gzip.NewWriterLevel(nil, level)
	if err != nil {
		return nil, ewrap.Wrap(err, "invalid gzip level").WithMetadata("level", level)
	}

	g := &Gzip{level: level}
	g.buffers.New = func() any { return new(bytes.Buffer) }

	return g, nil
}

// Compress gzips p into a freshly allocated slice.
func (g *Gzip) Compress(p []byte) ([]byte, error) {
	buf, ok := g.buffers.Get().(*bytes.Buffer)
	if !ok {
		buf = new(bytes.Buffer)
	}

	buf.Reset()
	defer g.buffers.Put(buf)

	zw := g.writer(buf)
	defer g.writers.Put(zw)

	_, err := zw.Write(p)
	if err != nil {
		return nil, ewrap.Wrap(ErrCompressionFailed, err.Error())
	}

	err = zw.Close()
	if err != nil {
		return nil, ewrap.Wrap(ErrCompressionFailed, err.Error())
	}

	return bytes.Clone(buf.Bytes()), nil
}

// Encoding returns "gzip".
func (*Gzip) Encoding() string { return "gzip" }

func (g *Gzip) writer(buf *bytes.Buffer) *gzip.Writer {
	if zw, ok := g.writers.Get().(*gzip.Writer); ok {
		zw.Reset(buf)

		return zw
	}

	// the level was checked in NewGzip
	zw, _ := gzip.NewWriterLevel(buf, g.level)

	return zw
}

// New returns a Gzip compressor when enabled is true and Identity otherwise.
func New(enabled bool, level int) (Compressor, error) {
	if !enabled {
		return Identity{}, nil
	}

	return NewGzip(level)
}
