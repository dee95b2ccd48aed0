package runtime

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

type testPublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, topic)
	return nil
}

func (p *testPublisher) Close() error { return nil }

type testSubscriber struct{}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }
