// Package engine attributes feed events to the named engines that likely
// produced them, using keyword matching over the event message and phase.
//
// Classification is a display heuristic. Keyword sets may overlap and one
// event can count toward several engines.
package engine

import (
	"strings"

	"github.com/papercomputeco/pulse/pkg/event"
)

// Engine is a named set of keywords.
type Engine struct {
	ID       string   `toml:"id"`
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

// Activity summarises how recently and how often an engine matched.
type Activity struct {
	// LastEvent is the newest matching event, nil when nothing matched.
	LastEvent *event.Event

	// RecentCount is the number of matching events in the window.
	RecentCount int
}

// Active reports whether the engine matched anything in the window.
func (a Activity) Active() bool {
	return a.RecentCount > 0
}

// Match reports whether any keyword of e occurs, ignoring case, in the
// message or phase of ev. Empty keywords never match.
func Match(e Engine, ev event.Event) bool {
	message := strings.ToLower(ev.Message)
	phase := strings.ToLower(string(ev.Phase))

	for _, kw := range e.Keywords {
		if kw == "" {
			continue
		}
		kw = strings.ToLower(kw)
		if strings.Contains(message, kw) || strings.Contains(phase, kw) {
			return true
		}
	}
	return false
}

// Matches returns the ids of every engine ev matches, in engine order.
func Matches(engines []Engine, ev event.Event) []string {
	var ids []string
	for _, e := range engines {
		if Match(e, ev) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Classify computes the activity of every engine over recent, which must be
// ordered oldest to newest. Every engine appears in the result, with zero
// activity when nothing matched. The result depends only on the arguments.
func Classify(engines []Engine, recent []event.Event) map[string]Activity {
	out := make(map[string]Activity, len(engines))
	for _, e := range engines {
		var act Activity
		for i := range recent {
			if !Match(e, recent[i]) {
				continue
			}
			act.RecentCount++
			last := recent[i]
			act.LastEvent = &last
		}
		out[e.ID] = act
	}
	return out
}
