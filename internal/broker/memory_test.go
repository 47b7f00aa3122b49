package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishReceive(t *testing.T) {
	t.Parallel()

	b := NewMemory(4)
	defer b.Close()
	ctx := context.Background()

	msg := Message{Body: []byte("hello"), Metadata: map[string]string{"x-correlation-id": "c1"}}
	require.NoError(t, b.Publish(ctx, "crawl-queue", msg))

	got, err := b.Receive(ctx, "crawl-queue", 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("hello"), got.Body)
	assert.Equal(t, "c1", CorrelationID(got))
}

func TestMemoryReceiveEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	b := NewMemory(4)
	defer b.Close()

	got, err := b.Receive(context.Background(), "empty-queue", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryQueuesAreIndependent(t *testing.T) {
	t.Parallel()

	b := NewMemory(4)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "a", Message{Body: []byte("1")}))
	require.NoError(t, b.Publish(ctx, "b", Message{Body: []byte("2")}))

	got, err := b.Receive(ctx, "b", 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("2"), got.Body)
	assert.Equal(t, 1, b.Len("a"))
}

func TestMemoryPublishFullQueue(t *testing.T) {
	t.Parallel()

	b := NewMemory(1)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "q", Message{Body: []byte("1")}))
	err := b.Publish(ctx, "q", Message{Body: []byte("2")})
	assert.ErrorContains(t, err, "queue full")
}

func TestMemoryClosedBrokerRejects(t *testing.T) {
	t.Parallel()

	b := NewMemory(4)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "closing twice is fine")

	err := b.Publish(context.Background(), "q", Message{})
	assert.ErrorContains(t, err, "closed")

	_, err = b.Receive(context.Background(), "q", 10*time.Millisecond)
	assert.ErrorContains(t, err, "closed")
}
