// Package stream normalizes DynamoDB change-stream records into Events: the
// event kind plus decoded before and after images. Decoding of the
// attribute-typed wire format is delegated to a Decoder so it can be swapped
// without touching routing.
package stream
