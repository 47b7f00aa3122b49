package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Broker backed by buffered channels, used in
// tests and single-binary deployments. Queues are created on first use.
type Memory struct {
	mu      sync.Mutex
	queues  map[string]chan Message
	size    int
	closed  bool
	closeCh chan struct{}
}

// NewMemory creates an in-process broker whose queues buffer up to size
// messages each.
func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1024
	}
	return &Memory{
		queues:  make(map[string]chan Message),
		size:    size,
		closeCh: make(chan struct{}),
	}
}

func (m *Memory) queue(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("memory broker is closed")
	}
	ch, ok := m.queues[name]
	if !ok {
		ch = make(chan Message, m.size)
		m.queues[name] = ch
	}
	return ch, nil
}

// Publish enqueues a copy of the message. It fails rather than blocks
// when the queue buffer is full.
func (m *Memory) Publish(ctx context.Context, queue string, msg Message) error {
	ch, err := m.queue(queue)
	if err != nil {
		return err
	}
	select {
	case ch <- msg.Clone():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %q: %w", queue, ctx.Err())
	default:
		return fmt.Errorf("publish to %q: queue full", queue)
	}
}

// Receive returns the next message, or nil after wait with an empty
// queue.
func (m *Memory) Receive(ctx context.Context, queue string, wait time.Duration) (*Message, error) {
	ch, err := m.queue(queue)
	if err != nil {
		return nil, err
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case msg := <-ch:
		return &msg, nil
	case <-t.C:
		return nil, nil
	case <-m.closeCh:
		return nil, fmt.Errorf("memory broker is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many messages are buffered on the named queue.
func (m *Memory) Len(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[queue])
}

// Close unblocks all receivers. Buffered messages are dropped.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}
