package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrDecoderRequired      = sterrors.New("streamroute: attribute decoder is required")
	ErrServiceRequired      = sterrors.New("streamroute: stream service is required")
	ErrGroupsRequired       = sterrors.New("streamroute: at least one handler group is required")
	ErrConsumeQueueRequired = sterrors.New("streamroute: consume queue is required")
	ErrHandlerNameRequired  = sterrors.New("streamroute: handler name is required")
	ErrConfigRequired       = sterrors.New("streamroute: configuration is required")
	ErrLoggerRequired       = sterrors.New("streamroute: logger is required")
	ErrEventPayloadRequired = sterrors.New("streamroute: event payload is required")
	ErrEventRecordsMissing  = sterrors.New("streamroute: event payload carries no stream records")
)

// ConfigValidationError reports an invalid Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "streamroute: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// RecordError ties a failure to the position of the raw record in its batch.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("streamroute: record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// HandlerError reports a handler that kept failing after its retries.
type HandlerError struct {
	Group   string
	Index   int
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("streamroute: group %q handler %d failed for event %s: %v", e.Group, e.Index, e.EventID, e.Err)
	}
	return fmt.Sprintf("streamroute: group %q handler %d failed: %v", e.Group, e.Index, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
