// Package batch holds buffered lines and splits them into request bodies.
package batch

import (
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/ddlogger/internal/compress"
)

// Buffer is the ordered set of lines accepted since the last flush together
// with their total raw byte size.
type Buffer struct {
	lines []string
	size  int
}

// Push appends a line.
func (b *Buffer) Push(line string) {
	b.lines = append(b.lines, line)
	b.size += len(line)
}

// Lines returns the buffered lines in arrival order.
func (b *Buffer) Lines() []string { return b.lines }

// Len returns the number of buffered lines.
func (b *Buffer) Len() int { return len(b.lines) }

// Size returns the sum of the raw lengths of the buffered lines.
func (b *Buffer) Size() int { return b.size }

// Empty reports whether nothing is buffered.
func (b *Buffer) Empty() bool { return len(b.lines) == 0 }

// Reset clears the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	clear(b.lines)
	b.lines = b.lines[:0]
	b.size = 0
}

// Batch is one request body.
type Batch struct {
	Body  []byte
	Lines int
}

// Skipped describes a line that did not make it into any batch.
type Skipped struct {
	Index int
	Size  int
	Err   error
}

// Result is the outcome of Build.
type Result struct {
	Batches []Batch
	// Oversized lists lines whose rendered form exceeded the line bound.
	Oversized []Skipped
	// Failed lists lines the compressor could not handle.
	Failed []Skipped
}

// Builder renders lines (newline appended, then compressed) and packs them into
// batches that never exceed MaxPayloadBytes, except when a single rendered line
// is larger on its own.
type Builder struct {
	MaxLineBytes    int
	MaxPayloadBytes int
	Compressor      compress.Compressor
}

// Build splits lines into batches, preserving order.
func (b Builder) Build(lines []string) Result {
	var (
		result  Result
		current []byte
		count   int
	)

	compressor := b.Compressor
	if compressor == nil {
		compressor = compress.Identity{}
	}

	closeBatch := func() {
		if count == 0 {
			return
		}

		result.Batches = append(result.Batches, Batch{Body: current, Lines: count})
		current = nil
		count = 0
	}

	for i, line := range lines {
		raw := make([]byte, 0, len(line)+1)
		raw = append(raw, line...)
		raw = append(raw, '\n')

		rendered, err := compressor.Compress(raw)
		if err != nil {
			result.Failed = append(result.Failed, Skipped{
				Index: i,
				Size:  len(raw),
				Err:   ewrap.Wrap(err, "rendering line").WithMetadata("index", i),
			})

			continue
		}

		if len(rendered) > b.MaxLineBytes {
			result.Oversized = append(result.Oversized, Skipped{Index: i, Size: len(rendered)})

			continue
		}

		if count > 0 && len(current)+len(rendered) > b.MaxPayloadBytes {
			closeBatch()
		}

		current = append(current, rendered...)
		count++
	}

	closeBatch()

	return result
}
