package stream

import (
	"fmt"

	jsoncodec "github.com/drblury/streamroute/internal/runtime/jsoncodec"
)

// TypedEvent is an Event whose images have been shaped into T. Fields missing
// from an image keep their zero value, so T describes a partial item.
type TypedEvent[T any] struct {
	Kind   Kind
	Before T
	After  T
	Keys   T

	EventID        string
	SequenceNumber string
}

// Typed converts every image of e into T.
func Typed[T any](e Event) (TypedEvent[T], error) {
	out := TypedEvent[T]{
		Kind:           e.Kind,
		EventID:        e.EventID,
		SequenceNumber: e.SequenceNumber,
	}

	var err error
	if out.Before, err = ImageAs[T](e.Before); err != nil {
		return TypedEvent[T]{}, fmt.Errorf("before image: %w", err)
	}
	if out.After, err = ImageAs[T](e.After); err != nil {
		return TypedEvent[T]{}, fmt.Errorf("after image: %w", err)
	}
	if out.Keys, err = ImageAs[T](e.Keys); err != nil {
		return TypedEvent[T]{}, fmt.Errorf("keys: %w", err)
	}
	return out, nil
}

// ImageAs converts a single image into T using its JSON field names.
func ImageAs[T any](img Image) (T, error) {
	var out T
	if len(img) == 0 {
		return out, nil
	}
	if err := jsoncodec.Convert(img, &out); err != nil {
		return out, err
	}
	return out, nil
}
