package runtime

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	"github.com/drblury/streamroute/internal/runtime/ids"
)

// PublishBatch publishes a raw stream event payload to topic, defaulting to
// the configured consume queue.
func (s *Service) PublishBatch(ctx context.Context, topic string, payload []byte) error {
	if s == nil {
		return errors.New("stream service is nil")
	}
	if len(payload) == 0 {
		return errspkg.ErrEventPayloadRequired
	}
	if topic == "" {
		topic = s.Conf.ConsumeQueue
	}
	if topic == "" {
		return errspkg.ErrConsumeQueueRequired
	}

	msg := message.NewMessage(ids.NewInvocationID(), payload)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return s.publisher.Publish(topic, msg)
}
