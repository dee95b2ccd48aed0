// Package lambda adapts the DynamoDB stream payload delivered to AWS Lambda
// into the SDK record type consumed by the router.
package lambda

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	jsoncodec "github.com/drblury/streamroute/internal/runtime/jsoncodec"
)

// ParseEvent decodes a Lambda DynamoDB stream event ({"Records": [...]}) and
// converts every record, keeping batch order. A single stream record without
// the envelope, as sent by an EventBridge pipe with a queue target, is treated
// as a batch of one. Payloads that are neither fail with
// ErrEventRecordsMissing.
func ParseEvent(data []byte) ([]types.Record, error) {
	if len(data) == 0 {
		return nil, errspkg.ErrEventPayloadRequired
	}

	var event events.DynamoDBEvent
	if err := jsoncodec.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parse dynamodb stream event: %w", err)
	}
	if event.Records != nil {
		return FromEvent(event)
	}

	var record events.DynamoDBEventRecord
	if err := jsoncodec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse dynamodb stream record: %w", err)
	}
	if !isStreamRecord(record) {
		return nil, errspkg.ErrEventRecordsMissing
	}
	return FromEvent(events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{record}})
}

// isStreamRecord reports whether a bare payload decoded into at least the
// fields every stream record carries.
func isStreamRecord(r events.DynamoDBEventRecord) bool {
	if r.EventName == "" {
		return false
	}
	change := r.Change
	return len(change.Keys) > 0 || len(change.NewImage) > 0 || len(change.OldImage) > 0 || change.SequenceNumber != ""
}

// FromEvent converts all records of a Lambda event.
func FromEvent(event events.DynamoDBEvent) ([]types.Record, error) {
	records := make([]types.Record, 0, len(event.Records))
	for i, r := range event.Records {
		record, err := FromRecord(r)
		if err != nil {
			return nil, &errspkg.RecordError{Index: i, Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

// FromRecord converts a single Lambda stream record.
func FromRecord(r events.DynamoDBEventRecord) (types.Record, error) {
	record := types.Record{
		AwsRegion:    optionalString(r.AWSRegion),
		EventID:      optionalString(r.EventID),
		EventName:    types.OperationType(r.EventName),
		EventSource:  optionalString(r.EventSource),
		EventVersion: optionalString(r.EventVersion),
	}
	if r.UserIdentity != nil {
		record.UserIdentity = &types.Identity{
			PrincipalId: optionalString(r.UserIdentity.PrincipalID),
			Type:        optionalString(r.UserIdentity.Type),
		}
	}

	change := r.Change
	payload := &types.StreamRecord{
		SequenceNumber: optionalString(change.SequenceNumber),
		StreamViewType: types.StreamViewType(change.StreamViewType),
	}
	if change.SizeBytes > 0 {
		payload.SizeBytes = aws.Int64(change.SizeBytes)
	}
	if !change.ApproximateCreationDateTime.IsZero() {
		payload.ApproximateCreationDateTime = aws.Time(change.ApproximateCreationDateTime.Time)
	}

	var err error
	if payload.Keys, err = convertImage(change.Keys); err != nil {
		return types.Record{}, fmt.Errorf("keys: %w", err)
	}
	if payload.NewImage, err = convertImage(change.NewImage); err != nil {
		return types.Record{}, fmt.Errorf("new image: %w", err)
	}
	if payload.OldImage, err = convertImage(change.OldImage); err != nil {
		return types.Record{}, fmt.Errorf("old image: %w", err)
	}
	record.Dynamodb = payload
	return record, nil
}

func convertImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	if image == nil {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(image))
	for name, av := range image {
		converted, err := convertAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = converted
	}
	return out, nil
}

func convertAttribute(av events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: av.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: av.Number()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: av.Binary()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: av.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: av.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: av.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: av.BinarySet()}, nil
	case events.DataTypeList:
		list := av.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			converted, err := convertAttribute(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = converted
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		converted, err := convertImage(av.Map())
		if err != nil {
			return nil, err
		}
		if converted == nil {
			converted = map[string]types.AttributeValue{}
		}
		return &types.AttributeValueMemberM{Value: converted}, nil
	}
	return nil, fmt.Errorf("unsupported attribute data type %d", av.DataType())
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
