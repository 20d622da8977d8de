// Package sse provides a minimal, purpose-built frame assembler for the
// newline-delimited "data:" streams pushed by the dashboard backend.
//
// Two framings are supported:
//   - FramingLine: one frame per line (the activity feed).
//   - FramingBlankLine: frames terminated by a blank line (the generation
//     stream), as in standard server-sent events.
//
// The package only assembles frames. Decoding the JSON payload is left to
// pkg/event, so a corrupt payload never affects framing of its neighbours.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// Event stream format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DataMarker prefixes every line that carries a payload.
const DataMarker = "data:"

// Framing selects the frame boundary delimiter.
type Framing int

const (
	// FramingLine ends a frame at every "\n". Used by the activity feed.
	FramingLine Framing = iota

	// FramingBlankLine ends a frame at a blank line ("\n\n"). Used by the
	// one-shot generation stream.
	FramingBlankLine
)

// Delimiter returns the frame boundary for f.
func (f Framing) Delimiter() string {
	if f == FramingBlankLine {
		return "\n\n"
	}
	return "\n"
}

func (f Framing) String() string {
	switch f {
	case FramingLine:
		return "line"
	case FramingBlankLine:
		return "blank-line"
	default:
		return "unknown"
	}
}

// Frame is a single complete unit of the wire protocol.
type Frame struct {
	// Data is the payload following the data marker, with a single leading
	// space stripped. Multiple data lines within one blank-line frame are
	// joined with "\n".
	Data string
}
