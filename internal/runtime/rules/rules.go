// Package rules provides ready-made predicates for handler groups. Every
// helper returns a router.Predicate and can be mixed freely with hand-written
// ones.
package rules

import (
	"reflect"
	"slices"

	"github.com/drblury/streamroute/internal/runtime/router"
	"github.com/drblury/streamroute/internal/runtime/stream"
)

// OfKind accepts events whose kind is one of kinds.
func OfKind(kinds ...stream.Kind) router.Predicate {
	return func(e stream.Event) bool {
		return slices.Contains(kinds, e.Kind)
	}
}

// Inserted accepts newly created items.
func Inserted() router.Predicate { return OfKind(stream.KindInsert) }

// Modified accepts updated items.
func Modified() router.Predicate { return OfKind(stream.KindModify) }

// Removed accepts deleted items.
func Removed() router.Predicate { return OfKind(stream.KindRemove) }

// HasField accepts events whose image on side carries field.
func HasField(side stream.Side, field string) router.Predicate {
	return func(e stream.Event) bool {
		return e.Image(side).Has(field)
	}
}

// FieldEquals accepts events whose image on side holds value under field.
// Numbers compare by value whatever their Go type, so FieldEquals(After,
// "items", 3) matches a decoded float64(3).
func FieldEquals(side stream.Side, field string, value any) router.Predicate {
	return func(e stream.Event) bool {
		got, ok := e.Image(side).Get(field)
		return ok && equal(got, value)
	}
}

// FieldIn accepts events whose field on side equals any of values.
func FieldIn(side stream.Side, field string, values ...any) router.Predicate {
	return func(e stream.Event) bool {
		got, ok := e.Image(side).Get(field)
		if !ok {
			return false
		}
		for _, v := range values {
			if equal(got, v) {
				return true
			}
		}
		return false
	}
}

// FieldChanged accepts events where field differs between the before and
// after images, including when it appears or disappears.
func FieldChanged(field string) router.Predicate {
	return func(e stream.Event) bool {
		before, hadBefore := e.Before.Get(field)
		after, hasAfter := e.After.Get(field)
		if hadBefore != hasAfter {
			return true
		}
		return hadBefore && !equal(before, after)
	}
}

// Not inverts p.
func Not(p router.Predicate) router.Predicate {
	return func(e stream.Event) bool {
		return !p(e)
	}
}

// AllOf accepts an event when every predicate does, stopping at the first
// rejection. Like a handler group, an empty AllOf never matches.
func AllOf(ps ...router.Predicate) router.Predicate {
	return func(e stream.Event) bool {
		return router.MatchesAll(ps, e)
	}
}

// AnyOf accepts an event when at least one predicate does, stopping at the
// first acceptance. An empty AnyOf never matches.
func AnyOf(ps ...router.Predicate) router.Predicate {
	return func(e stream.Event) bool {
		for _, p := range ps {
			if p(e) {
				return true
			}
		}
		return false
	}
}

// Typed converts the image on side into T and hands it to fn. Events whose
// image does not fit T are rejected.
func Typed[T any](side stream.Side, fn func(T) bool) router.Predicate {
	return func(e stream.Event) bool {
		v, err := stream.ImageAs[T](e.Image(side))
		if err != nil {
			return false
		}
		return fn(v)
	}
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
