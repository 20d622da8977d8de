package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/utils"
)

var (
	// ErrNotObject indicates the payload is valid JSON but not an object.
	ErrNotObject = errors.New("payload is not a JSON object")

	// ErrMissingID indicates a feed event without a server-assigned id.
	ErrMissingID = errors.New("event has no id")

	// ErrUnknownType indicates a generation frame with an unrecognised
	// discriminant.
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError wraps a failure to decode one frame payload. Decode errors
// are always skippable: a single corrupt frame must never end a stream.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame %q: %v", utils.Truncate(e.Payload, 64), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsSkippable reports whether err is a frame-level decode failure that the
// stream should skip past rather than abort on.
func IsSkippable(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// DecodeEvent decodes a feed frame payload into an Event.
func DecodeEvent(payload string) (Event, error) {
	var ev Event
	if err := unmarshalObject(payload, &ev); err != nil {
		return Event{}, err
	}

	if ev.ID == "" {
		return Event{}, &DecodeError{Payload: payload, Err: ErrMissingID}
	}

	return ev, nil
}

// wireMessage accepts the field aliases seen from the generation endpoint.
type wireMessage struct {
	Type    MessageType     `json:"type"`
	Content *string         `json:"content"`
	Text    *string         `json:"text"`
	Result  json.RawMessage `json:"result"`
	Error   *string         `json:"error"`
	Message *string         `json:"message"`
}

// DecodeMessage decodes a generation frame payload into a Message.
// "text" is accepted in place of "content" and "message" in place of
// "error".
func DecodeMessage(payload string) (Message, error) {
	var w wireMessage
	if err := unmarshalObject(payload, &w); err != nil {
		return Message{}, err
	}

	msg := Message{Type: w.Type}
	switch w.Type {
	case MessageChunk:
		msg.Content = firstNonNil(w.Content, w.Text)
	case MessageComplete:
		msg.Result = w.Result
	case MessageError:
		msg.Error = firstNonNil(w.Error, w.Message)
	default:
		return Message{}, &DecodeError{
			Payload: payload,
			Err:     fmt.Errorf("%w: %q", ErrUnknownType, w.Type),
		}
	}

	return msg, nil
}

func unmarshalObject(payload string, v any) error {
	trimmed := bytes.TrimSpace([]byte(payload))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return &DecodeError{Payload: payload, Err: ErrNotObject}
		}
		return &DecodeError{Payload: payload, Err: errors.New("invalid JSON")}
	}

	if err := json.Unmarshal(trimmed, v); err != nil {
		return &DecodeError{Payload: payload, Err: err}
	}
	return nil
}

func firstNonNil(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

// Decoder applies the fail-open policy on top of DecodeEvent and
// DecodeMessage: failures are logged and counted, and the caller is told to
// move on to the next frame. It is safe for concurrent use.
type Decoder struct {
	logger  *slog.Logger
	skipped atomic.Int64
}

// NewDecoder returns a Decoder logging skips to l. A nil logger discards.
func NewDecoder(l *slog.Logger) *Decoder {
	if l == nil {
		l = logger.Nop()
	}
	return &Decoder{logger: l}
}

// Event decodes a feed payload. ok is false when the frame was skipped.
func (d *Decoder) Event(payload string) (Event, bool) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		d.skip(err)
		return Event{}, false
	}
	return ev, true
}

// Message decodes a generation payload. ok is false when the frame was
// skipped.
func (d *Decoder) Message(payload string) (Message, bool) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		d.skip(err)
		return Message{}, false
	}
	return msg, true
}

// Skipped returns the number of frames skipped so far.
func (d *Decoder) Skipped() int {
	return int(d.skipped.Load())
}

func (d *Decoder) skip(err error) {
	d.skipped.Add(1)
	d.logger.Warn("skipping malformed frame", "error", err)
}
