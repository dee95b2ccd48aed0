package stream

// Image is a decoded item image: attribute name to plain Go value. Numbers
// decode as float64, lists as []any and maps as map[string]any.
type Image map[string]any

// Get returns the value stored under field.
func (i Image) Get(field string) (any, bool) {
	v, ok := i[field]
	return v, ok
}

// Has reports whether field is present, even when its value is null.
func (i Image) Has(field string) bool {
	_, ok := i[field]
	return ok
}

// Side selects one of the two item images carried by an Event.
type Side int

const (
	Before Side = iota
	After
)

func (s Side) String() string {
	if s == Before {
		return "before"
	}
	return "after"
}

// Event is the normalized form of one change-stream record. Before, After and
// Keys are never nil: an absent image is an empty map, so predicates only
// need to check individual fields.
type Event struct {
	Kind   Kind
	Before Image
	After  Image

	Keys           Image
	EventID        string
	SequenceNumber string
}

// Image returns the image on the requested side.
func (e Event) Image(side Side) Image {
	if side == Before {
		return e.Before
	}
	return e.After
}
