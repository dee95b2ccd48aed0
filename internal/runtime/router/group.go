package router

import (
	"context"

	"github.com/drblury/streamroute/internal/runtime/stream"
)

// Predicate decides whether an event is relevant to a handler group. It must
// be free of side effects that correctness depends on: the router may skip
// it once an earlier predicate in the same group returned false.
type Predicate func(event stream.Event) bool

// Handler processes one routed event. The router only passes handlers
// through; invoking them is up to the caller.
type Handler func(ctx context.Context, event stream.Event) error

// HandlerGroup is one registration unit: an ordered rule list and the
// handlers to run when every rule matches. A group without rules never
// matches.
type HandlerGroup struct {
	Name     string
	Rules    []Predicate
	Handlers []Handler
}

// Match pairs an event with the handlers of a group that matched it.
// Handlers is the group's slice, in declared order.
type Match struct {
	Event    stream.Event
	Group    string
	Handlers []Handler
}

// MatchesAll reports whether every rule accepts event, evaluating rules in
// order and stopping at the first rejection. An empty rule list does not
// match.
func MatchesAll(rules []Predicate, event stream.Event) bool {
	if len(rules) == 0 {
		return false
	}
	for _, rule := range rules {
		if !rule(event) {
			return false
		}
	}
	return true
}
