package stream

import "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

// Kind tags the mutation that produced a change record. It carries the
// stream's event name verbatim, so values outside the three known kinds pass
// through unchanged.
type Kind string

const (
	KindInsert Kind = Kind(types.OperationTypeInsert)
	KindModify Kind = Kind(types.OperationTypeModify)
	KindRemove Kind = Kind(types.OperationTypeRemove)
)

// Mutation-oriented names for the same kinds.
const (
	KindCreated = KindInsert
	KindUpdated = KindModify
	KindDeleted = KindRemove
)

// Valid reports whether k is one of the three kinds a DynamoDB stream emits.
func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindModify, KindRemove:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
