package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSub is a Broker backed by Google Cloud Pub/Sub. Each queue name maps
// to a topic and a same-named subscription; both must already exist.
// Message metadata rides in Pub/Sub attributes, so death history and the
// sweep counter survive the transport.
type PubSub struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSub connects to Pub/Sub in the given project using Application
// Default Credentials.
func NewPubSub(ctx context.Context, projectID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSub{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSub) topic(queue string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[queue]
	if !ok {
		t = p.client.Topic(queue)
		p.topics[queue] = t
	}
	return t
}

// Publish sends the message to the queue's topic and waits for the
// server ack, so a returned nil means the message is durable.
func (p *PubSub) Publish(ctx context.Context, queue string, msg Message) error {
	result := p.topic(queue).Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: msg.Metadata,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish to topic %q: %w", queue, err)
	}
	return nil
}

// Receive pulls one message from the queue's subscription, waiting up to
// wait. The message is acked before return; redelivery on failure is the
// listener's job, not the transport's.
func (p *PubSub) Receive(ctx context.Context, queue string, wait time.Duration) (*Message, error) {
	sub := p.client.Subscription(queue)

	cctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var (
		mu  sync.Mutex
		out *Message
	)
	err := sub.Receive(cctx, func(_ context.Context, m *pubsub.Message) {
		mu.Lock()
		defer mu.Unlock()
		if out != nil {
			m.Nack()
			return
		}
		out = &Message{
			Body:     append([]byte(nil), m.Data...),
			Metadata: m.Attributes,
		}
		m.Ack()
		cancel()
	})
	if err != nil && cctx.Err() == nil {
		return nil, fmt.Errorf("failed to receive from subscription %q: %w", queue, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

// Close stops the topic publishers and closes the client connection.
func (p *PubSub) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
