package sse

import (
	"errors"
	"strings"
)

// DefaultMaxFrameSize bounds the carry-over buffer (1 MiB), matching the
// largest line the stream readers in this codebase accept.
const DefaultMaxFrameSize = 1024 * 1024

// ErrFrameTooLarge is returned by Assembler.Push when the carry-over buffer
// grows past the configured maximum without reaching a frame boundary. The
// buffer is discarded and assembly continues with the next chunk.
var ErrFrameTooLarge = errors.New("sse: frame exceeds maximum size")

// Split is the pure core of the assembler. Given the unconsumed carry-over
// from previous chunks and a new chunk it returns every complete frame, in
// order, plus the new carry-over.
//
// The last segment after splitting is never assumed complete: it becomes the
// new carry-over unless carry+chunk ended exactly on a delimiter, in which
// case the returned carry-over is empty. Segments without a data line
// (keep-alives, comments, blank lines) are dropped.
//
// CRLF line endings are normalised to LF. A CR at the very end of the input
// is kept in the carry-over so a CRLF split across chunks still normalises.
func Split(f Framing, carry, chunk string) ([]Frame, string) {
	buf := normalizeNewlines(carry + chunk)
	delim := f.Delimiter()

	segments := strings.Split(buf, delim)
	rest := segments[len(segments)-1]
	if strings.HasSuffix(buf, delim) {
		rest = ""
	}

	var frames []Frame
	for _, seg := range segments[:len(segments)-1] {
		if frame, ok := parseSegment(seg); ok {
			frames = append(frames, frame)
		}
	}

	return frames, rest
}

// parseSegment extracts the data payload of one delimited segment. A
// segment may contain several lines under blank-line framing; only lines
// beginning with the data marker contribute.
func parseSegment(seg string) (Frame, bool) {
	var (
		data    strings.Builder
		hasData bool
	)

	for line := range strings.SplitSeq(seg, "\n") {
		value, ok := strings.CutPrefix(line, DataMarker)
		if !ok {
			// "event:", "id:", ": keep-alive" and anything else is ignored.
			continue
		}

		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
		hasData = true
	}

	if !hasData {
		return Frame{}, false
	}
	return Frame{Data: data.String()}, true
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r\n") {
		return s
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// Assembler turns arbitrary byte chunks into complete frames, keeping the
// carry-over buffer between calls. It is not safe for concurrent use; each
// stream owns exactly one Assembler.
type Assembler struct {
	framing Framing
	maxSize int
	carry   string
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithMaxFrameSize overrides DefaultMaxFrameSize. Values <= 0 disable the
// limit.
func WithMaxFrameSize(n int) AssemblerOption {
	return func(a *Assembler) {
		a.maxSize = n
	}
}

// NewAssembler returns an Assembler for the given framing.
func NewAssembler(f Framing, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		framing: f,
		maxSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Push feeds one chunk and returns the frames it completed. When the
// carry-over exceeds the maximum frame size it is dropped and
// ErrFrameTooLarge is returned alongside the frames that were complete.
func (a *Assembler) Push(chunk []byte) ([]Frame, error) {
	frames, rest := Split(a.framing, a.carry, string(chunk))
	if a.maxSize > 0 && len(rest) > a.maxSize {
		a.carry = ""
		return frames, ErrFrameTooLarge
	}

	a.carry = rest
	return frames, nil
}

// Pending returns the unconsumed carry-over text.
func (a *Assembler) Pending() string {
	return a.carry
}

// Framing returns the framing this assembler splits on.
func (a *Assembler) Framing() Framing {
	return a.framing
}

// Reset discards the carry-over, e.g. before reusing the assembler for a new
// connection.
func (a *Assembler) Reset() {
	a.carry = ""
}
