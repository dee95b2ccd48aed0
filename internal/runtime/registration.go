package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	"github.com/drblury/streamroute/internal/runtime/lambda"
	routerpkg "github.com/drblury/streamroute/internal/runtime/router"
)

// StreamHandlerRegistration binds handler groups to a queue carrying DynamoDB
// stream events in the Lambda JSON format.
type StreamHandlerRegistration struct {
	Name         string
	ConsumeQueue string // Defaults to the configured consume queue.
	Subscriber   message.Subscriber
	Groups       []routerpkg.HandlerGroup
}

// RegisterStreamHandler attaches a handler that routes every consumed batch
// through groups and dispatches the matches.
func RegisterStreamHandler(svc *Service, cfg StreamHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerStreamHandler(cfg)
}

func (s *Service) registerStreamHandler(cfg StreamHandlerRegistration) error {
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if len(cfg.Groups) == 0 {
		return errspkg.ErrGroupsRequired
	}
	if cfg.ConsumeQueue == "" {
		cfg.ConsumeQueue = s.Conf.ConsumeQueue
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	groupNames := make([]string, len(cfg.Groups))
	for i, group := range cfg.Groups {
		groupNames[i] = group.Name
	}
	info := &HandlerInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Groups:       groupNames,
		Stats:        &HandlerStats{},
	}

	s.handlersMu.Lock()
	for _, existing := range s.handlers {
		if existing.Name == cfg.Name {
			s.handlersMu.Unlock()
			return fmt.Errorf("handler %q is already registered", cfg.Name)
		}
	}
	s.handlers = append(s.handlers, info)
	s.handlersMu.Unlock()

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		s.streamHandler(info, cfg.Groups),
	)
	return nil
}

func (s *Service) streamHandler(info *HandlerInfo, groups []routerpkg.HandlerGroup) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		result, err := s.processBatch(msg.Context(), msg.Payload, groups)
		info.Stats.record(result, time.Since(start), err, s.errorClassifier)
		return err
	}
}

// HandleBatch routes and dispatches one Lambda DynamoDB stream event without
// going through Watermill, for use from a Lambda function handler.
func (s *Service) HandleBatch(ctx context.Context, payload []byte, groups []routerpkg.HandlerGroup) error {
	_, err := s.processBatch(ctx, payload, groups)
	return err
}

// HandleRecords routes and dispatches already parsed records.
func (s *Service) HandleRecords(ctx context.Context, records []types.Record, groups []routerpkg.HandlerGroup) error {
	_, err := s.processRecords(ctx, records, groups)
	return err
}

func (s *Service) processBatch(ctx context.Context, payload []byte, groups []routerpkg.HandlerGroup) (batchResult, error) {
	records, err := lambda.ParseEvent(payload)
	if err != nil {
		return batchResult{}, &UnprocessableBatchError{Err: err}
	}
	return s.processRecords(ctx, records, groups)
}

func (s *Service) processRecords(ctx context.Context, records []types.Record, groups []routerpkg.HandlerGroup) (batchResult, error) {
	result := batchResult{records: len(records)}
	matches, err := s.streamRouter.Route(groups, records)
	if err != nil {
		return result, err
	}
	result.matches = len(matches)
	return result, s.dispatcher.Dispatch(ctx, matches)
}
