// Package event defines the decoded shapes carried by the activity feed and
// the generation stream, and the fail-open decoder that produces them.
package event

import (
	"encoding/json"
	"time"
)

// Phase is a coarse lifecycle stage attached to each feed event.
type Phase string

const (
	PhaseDetect  Phase = "detect"
	PhaseDecide  Phase = "decide"
	PhaseExecute Phase = "execute"
	PhaseProve   Phase = "prove"
	PhaseLearn   Phase = "learn"
	PhaseStandby Phase = "standby"
)

// Phases lists every known phase in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseDetect, PhaseDecide, PhaseExecute, PhaseProve, PhaseLearn, PhaseStandby}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseDetect, PhaseDecide, PhaseExecute, PhaseProve, PhaseLearn, PhaseStandby:
		return true
	default:
		return false
	}
}

// Status is the severity attached to each feed event.
type Status string

const (
	StatusInfo    Status = "info"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInfo, StatusSuccess, StatusWarning, StatusError:
		return true
	default:
		return false
	}
}

// Event is one decoded activity feed entry. Events are values: once decoded
// they are never mutated.
type Event struct {
	// ID is unique and assigned by the server.
	ID string `json:"id"`

	// Timestamp is the server's ISO-8601 timestamp, kept verbatim. The
	// client orders events by arrival, never by this field.
	Timestamp string `json:"timestamp"`

	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// Time parses Timestamp as RFC 3339.
func (e Event) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// MessageType is the discriminant of a generation stream frame.
type MessageType string

const (
	// MessageChunk carries incremental text.
	MessageChunk MessageType = "chunk"

	// MessageComplete carries the terminal result and ends the stream.
	MessageComplete MessageType = "complete"

	// MessageError carries a terminal failure and ends the stream.
	MessageError MessageType = "error"
)

// Terminal reports whether a frame of this type ends the stream.
func (t MessageType) Terminal() bool {
	return t == MessageComplete || t == MessageError
}

// Message is one decoded generation stream frame.
type Message struct {
	Type MessageType `json:"type"`

	// Content is the incremental text of a chunk frame.
	Content string `json:"content,omitempty"`

	// Result is the raw terminal payload of a complete frame.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the failure message of an error frame.
	Error string `json:"error,omitempty"`
}
