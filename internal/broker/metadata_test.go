package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSweepCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata map[string]string
		want     int
	}{
		{name: "no metadata", metadata: nil, want: 0},
		{
			name:     "explicit counter",
			metadata: map[string]string{"x-dlq-retry-count": "2"},
			want:     2,
		},
		{
			name:     "counter wins over death count",
			metadata: map[string]string{"x-dlq-retry-count": "1", "x-death-count": "5"},
			want:     1,
		},
		{
			name:     "falls back to deaths minus one",
			metadata: map[string]string{"x-death-count": "3"},
			want:     2,
		},
		{
			name:     "single death means zero sweeps",
			metadata: map[string]string{"x-death-count": "1"},
			want:     0,
		},
		{
			name:     "garbage counter falls back",
			metadata: map[string]string{"x-dlq-retry-count": "lots", "x-death-count": "2"},
			want:     1,
		},
		{
			name:     "negative counter falls back",
			metadata: map[string]string{"x-dlq-retry-count": "-1"},
			want:     0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &Message{Metadata: tt.metadata}
			assert.Equal(t, tt.want, SweepCount(msg))
		})
	}
}

func TestSetSweepCountRoundTrip(t *testing.T) {
	t.Parallel()

	msg := &Message{}
	SetSweepCount(msg, 3)
	assert.Equal(t, 3, SweepCount(msg))
	assert.Equal(t, "3", msg.Metadata["x-dlq-retry-count"])
}

func TestOriginQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata map[string]string
		want     string
	}{
		{
			name:     "first death queue",
			metadata: map[string]string{"x-first-death-queue": "classify-queue"},
			want:     "classify-queue",
		},
		{
			name:     "routing key convention",
			metadata: map[string]string{"x-routing-key": "store-queue.dlq"},
			want:     "store-queue",
		},
		{
			name:     "death queue wins over routing key",
			metadata: map[string]string{"x-first-death-queue": "crawl-queue", "x-routing-key": "store-queue.dlq"},
			want:     "crawl-queue",
		},
		{
			name:     "routing key without dlq suffix is ignored",
			metadata: map[string]string{"x-routing-key": "store-queue"},
			want:     "",
		},
		{name: "unknowable", metadata: nil, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &Message{Metadata: tt.metadata}
			assert.Equal(t, tt.want, OriginQueue(msg))
		})
	}
}

func TestMarkDeath(t *testing.T) {
	t.Parallel()

	msg := &Message{}
	markDeath(msg, "crawl-queue", errors.New("boom"), "게시글 크롤링 불가")

	assert.Equal(t, "crawl-queue", FirstDeathQueue(msg))
	assert.Equal(t, 1, DeathCount(msg))
	assert.Equal(t, "crawl-queue.dlq", msg.Metadata["x-routing-key"])
	assert.Equal(t, "boom", Exception(msg))
	assert.Equal(t, "게시글 크롤링 불가", FailureClass(msg))

	// A second death elsewhere must not rewrite the first death queue.
	markDeath(msg, "classify-queue", errors.New("again"), "")
	assert.Equal(t, "crawl-queue", FirstDeathQueue(msg))
	assert.Equal(t, 2, DeathCount(msg))
	assert.Equal(t, "classify-queue.dlq", msg.Metadata["x-routing-key"])
	assert.Equal(t, "again", Exception(msg))
	assert.Equal(t, "게시글 크롤링 불가", FailureClass(msg), "class sticks when the new death has none")
}

func TestMessageClone(t *testing.T) {
	t.Parallel()

	orig := Message{Body: []byte("payload"), Metadata: map[string]string{"x-correlation-id": "abc"}}
	clone := orig.Clone()

	clone.Body[0] = 'X'
	clone.Metadata["x-correlation-id"] = "other"

	assert.Equal(t, []byte("payload"), orig.Body)
	assert.Equal(t, "abc", CorrelationID(&orig))
}
