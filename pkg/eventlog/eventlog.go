// Package eventlog keeps the most recent feed events in a fixed-size ring.
package eventlog

import (
	"sync"

	"github.com/papercomputeco/pulse/pkg/event"
)

// Log is a bounded, insertion-ordered record of events. Appending past
// capacity evicts the oldest entry. It is safe for one writer and any number
// of readers.
type Log struct {
	mu    sync.RWMutex
	buf   []event.Event
	start int // index of the oldest retained event
	n     int // number of retained events
	total int
}

// New returns a Log retaining at most capacity events. Capacities below 1
// are raised to 1.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{buf: make([]event.Event, capacity)}
}

// Append records ev, evicting the oldest event when full.
func (l *Log) Append(ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = ev
		l.n++
		return
	}

	l.buf[l.start] = ev
	l.start = (l.start + 1) % len(l.buf)
}

// Snapshot returns the newest limit events, oldest first. A limit <= 0 or
// beyond the retained count returns everything retained.
func (l *Log) Snapshot(limit int) []event.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tail(limit)
}

// Views returns one snapshot per limit, all taken atomically with respect to
// Append.
func (l *Log) Views(limits ...int) [][]event.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([][]event.Event, len(limits))
	for i, limit := range limits {
		out[i] = l.tail(limit)
	}
	return out
}

func (l *Log) tail(limit int) []event.Event {
	if limit <= 0 || limit > l.n {
		limit = l.n
	}

	out := make([]event.Event, limit)
	first := l.start + l.n - limit
	for i := range limit {
		out[i] = l.buf[(first+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

// Cap returns the capacity.
func (l *Log) Cap() int {
	return len(l.buf)
}

// Total returns how many events were ever appended, including evicted ones.
func (l *Log) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Contains reports whether an event with id is still retained.
func (l *Log) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.n {
		if l.buf[(l.start+i)%len(l.buf)].ID == id {
			return true
		}
	}
	return false
}
