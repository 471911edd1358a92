package bus

import "github.com/hupe1980/agentrelay/core"

// Middleware is one stage of the ordered pipeline run before an event is
// recorded and dispatched. A stage receives the event and either forwards a
// (possibly modified) event to the next stage by returning true, or drops it
// by returning false. Dropped events are neither dispatched nor recorded in
// history.
type Middleware func(ev core.Event) (core.Event, bool)

// DropTypes returns a middleware that drops events of the listed types.
func DropTypes(types ...string) Middleware {
	drop := make(map[string]bool, len(types))
	for _, t := range types {
		drop[t] = true
	}
	return func(ev core.Event) (core.Event, bool) {
		if drop[ev.Type] {
			return ev, false
		}
		return ev, true
	}
}

// AnnotateSource returns a middleware that sets the event source when the
// producer left it empty.
func AnnotateSource(source string) Middleware {
	return func(ev core.Event) (core.Event, bool) {
		if ev.Source == "" {
			ev.Source = source
		}
		return ev, true
	}
}
