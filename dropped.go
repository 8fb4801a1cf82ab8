package ddlogger

// DropReason tells why a line never reached the intake.
type DropReason int

const (
	// DropOversized means the line, raw or rendered, exceeded MaxLineBytes.
	DropOversized DropReason = iota
	// DropRenderFailed means the line could not be compressed.
	DropRenderFailed
)

// String returns the reason name used in diagnostics.
func (r DropReason) String() string {
	switch r {
	case DropOversized:
		return "oversized"
	case DropRenderFailed:
		return "render_failed"
	default:
		return "unknown"
	}
}

// DroppedLine describes a line the engine discarded before sending it.
// Lines lost to a failed request are only counted in Metrics.Dropped.
type DroppedLine struct {
	Reason DropReason
	Line   string
	// Size is the byte count that was checked against MaxLineBytes.
	Size int
	Err  error
}

// DropHandler receives every DroppedLine. It runs on the engine goroutine
// and must not block.
type DropHandler func(DroppedLine)
