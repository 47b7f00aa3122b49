package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
)

// Producer publishes stage envelopes. It owns the JSON encoding and the
// correlation-id stamping so consumers never touch raw broker messages
// on the way out.
type Producer struct {
	broker broker.Broker
	log    *zap.Logger
}

// NewProducer wraps a broker for publishing stage envelopes.
func NewProducer(b broker.Broker, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{broker: b, log: log}
}

// Publish encodes the envelope and enqueues it on the named queue. The
// correlation id is duplicated into metadata so the broker layer can
// trace the message without decoding the body.
func (p *Producer) Publish(ctx context.Context, queue, correlationID string, envelope any) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode message for %q: %w", queue, err)
	}

	msg := broker.Message{Body: body}
	if correlationID != "" {
		broker.SetCorrelationID(&msg, correlationID)
	}

	if err := p.broker.Publish(ctx, queue, msg); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}

	p.log.Debug("message published",
		zap.String("queue", queue),
		zap.String("correlation_id", correlationID))
	return nil
}
