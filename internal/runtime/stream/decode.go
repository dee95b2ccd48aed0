package stream

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// Decoder turns an attribute-typed image ({"cartId": {"S": "..."}}) into a
// plain map. Implementations are only called with non-empty images.
type Decoder interface {
	Decode(attrs map[string]types.AttributeValue) (Image, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(attrs map[string]types.AttributeValue) (Image, error)

func (f DecoderFunc) Decode(attrs map[string]types.AttributeValue) (Image, error) {
	return f(attrs)
}

// AttributeValueDecoder is the default Decoder, backed by the AWS SDK
// attribute value unmarshaller.
var AttributeValueDecoder Decoder = DecoderFunc(unmarshalImage)

func unmarshalImage(attrs map[string]types.AttributeValue) (Image, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMap(attrs, &out); err != nil {
		return nil, err
	}
	return Image(out), nil
}

// DecodeError reports which image of a record could not be decoded.
type DecodeError struct {
	Image string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Image, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
