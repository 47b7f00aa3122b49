// Package broker provides durable named work queues behind a small
// transport interface, plus the consumer-side retry interceptor and
// dead-letter routing that every transport shares.
package broker

import (
	"context"
	"time"
)

// DefaultDeadLetterQueue is the shared dead-letter queue name used when a
// listener is not configured with one.
const DefaultDeadLetterQueue = "dead-letter-queue"

// Message is one unit of work on a queue. Metadata is a string side
// channel that survives dead-lettering and republish; counters and death
// history ride there, never in the body.
type Message struct {
	Body     []byte
	Metadata map[string]string
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := Message{Body: append([]byte(nil), m.Body...)}
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Broker is the transport boundary. Implementations provide at-least-once
// delivery of durable messages; retry and dead-letter semantics live in
// Listener, above the transport.
type Broker interface {
	// Publish enqueues a message on the named queue. Fire-and-forget:
	// success means the broker accepted the message, nothing more.
	Publish(ctx context.Context, queue string, msg Message) error

	// Receive returns the next message from the named queue, waiting up
	// to wait for one to arrive. A nil message with a nil error means the
	// queue was empty for the whole window.
	Receive(ctx context.Context, queue string, wait time.Duration) (*Message, error)

	// Close releases transport resources.
	Close() error
}
