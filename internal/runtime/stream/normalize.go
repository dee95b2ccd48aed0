package stream

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
)

const (
	imageNew  = "NewImage"
	imageOld  = "OldImage"
	imageKeys = "Keys"
)

// Normalizer converts raw stream records into Events. It holds no state
// besides its decoder and is safe for concurrent use.
type Normalizer struct {
	decoder Decoder
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDecoder replaces the attribute decoder.
func WithDecoder(decoder Decoder) Option {
	return func(n *Normalizer) {
		n.decoder = decoder
	}
}

// NewNormalizer builds a Normalizer that uses AttributeValueDecoder unless an
// option says otherwise.
func NewNormalizer(opts ...Option) (*Normalizer, error) {
	n := &Normalizer{decoder: AttributeValueDecoder}
	for _, opt := range opts {
		opt(n)
	}
	if n.decoder == nil {
		return nil, errspkg.ErrDecoderRequired
	}
	return n, nil
}

var defaultNormalizer = &Normalizer{decoder: AttributeValueDecoder}

// Normalize converts record with the default decoder.
func Normalize(record types.Record) (Event, error) {
	return defaultNormalizer.Normalize(record)
}

// Normalize converts one raw record. The event name is copied verbatim into
// Kind. Absent or empty images become empty maps without reaching the
// decoder; a decoder failure is returned as a *DecodeError.
func (n *Normalizer) Normalize(record types.Record) (Event, error) {
	event := Event{
		Kind:    Kind(record.EventName),
		EventID: aws.ToString(record.EventID),
		Before:  Image{},
		After:   Image{},
		Keys:    Image{},
	}

	payload := record.Dynamodb
	if payload == nil {
		return event, nil
	}
	event.SequenceNumber = aws.ToString(payload.SequenceNumber)

	var err error
	if event.After, err = n.decode(imageNew, payload.NewImage); err != nil {
		return Event{}, err
	}
	if event.Before, err = n.decode(imageOld, payload.OldImage); err != nil {
		return Event{}, err
	}
	if event.Keys, err = n.decode(imageKeys, payload.Keys); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (n *Normalizer) decode(name string, attrs map[string]types.AttributeValue) (Image, error) {
	if len(attrs) == 0 {
		return Image{}, nil
	}
	img, err := n.decoder.Decode(attrs)
	if err != nil {
		return nil, &DecodeError{Image: name, Err: err}
	}
	if img == nil {
		return Image{}, nil
	}
	return img, nil
}
