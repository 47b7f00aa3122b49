package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "casefeed:queue:"

// Redis is a Broker backed by Redis lists: LPUSH to enqueue, BRPOP to
// dequeue, so each queue is a FIFO shared by any number of workers. Body
// and metadata travel together as one JSON envelope per list element.
type Redis struct {
	client *redis.Client
}

type redisEnvelope struct {
	Body     []byte            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRedis wraps an existing Redis client. The caller owns the client's
// lifecycle up to Close.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(queue string) string {
	return redisKeyPrefix + queue
}

// Publish enqueues the message at the head of the queue's list.
func (r *Redis) Publish(ctx context.Context, queue string, msg Message) error {
	payload, err := json.Marshal(redisEnvelope{Body: msg.Body, Metadata: msg.Metadata})
	if err != nil {
		return fmt.Errorf("failed to encode message for %q: %w", queue, err)
	}
	if err := r.client.LPush(ctx, redisKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}
	return nil
}

// Receive blocks up to wait for the next message on the queue.
func (r *Redis) Receive(ctx context.Context, queue string, wait time.Duration) (*Message, error) {
	res, err := r.client.BRPop(ctx, wait, redisKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to receive from %q: %w", queue, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply from %q: %d elements", queue, len(res))
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("failed to decode message from %q: %w", queue, err)
	}
	return &Message{Body: env.Body, Metadata: env.Metadata}, nil
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
