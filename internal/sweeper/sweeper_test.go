package sweeper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/store"
)

func newTestSweeper(t *testing.T) (*Sweeper, *broker.Memory, *store.Memory) {
	t.Helper()
	b := broker.NewMemory(64)
	t.Cleanup(func() { _ = b.Close() })
	st := store.NewMemory()
	s := New(b, st, st, Config{ReceiveWait: 10 * time.Millisecond}, zap.NewNop())
	return s, b, st
}

// deadMessage builds a corpse the way the listener produces them.
func deadMessage(corrID, origin string, sweeps int, body string) broker.Message {
	msg := broker.Message{Body: []byte(body)}
	broker.SetCorrelationID(&msg, corrID)
	msg.Metadata["x-first-death-queue"] = origin
	msg.Metadata["x-death-count"] = "1"
	msg.Metadata["x-routing-key"] = origin + ".dlq"
	msg.Metadata["x-exception-message"] = "boom"
	if sweeps > 0 {
		broker.SetSweepCount(&msg, sweeps)
	}
	return msg
}

func TestSweepRequeuesWithBumpedCounter(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	msg := deadMessage("corr-1", "extract-text-queue", 1, `{"case_id":7}`)
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", msg))

	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Scanned: 1, Requeued: 1}, *stats)

	requeued, err := b.Receive(ctx, "extract-text-queue", 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, 2, broker.SweepCount(requeued), "counter bumps on every requeue")
	assert.Equal(t, []byte(`{"case_id":7}`), requeued.Body)
	assert.Equal(t, "corr-1", broker.CorrelationID(requeued))
	assert.Zero(t, st.Failures())
}

func TestSweepWritesOffAtCeiling(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	body := `{"correlation_id":"corr-2","case_id":7,"title":"실종자를 찾습니다",` +
		`"created_at":"2026-08-01T09:30:00Z","parsed":{"occurred_at":"2024-01-01"}}`
	msg := deadMessage("corr-2", "extract-text-queue", 3, body)
	msg.Metadata["x-failure-class"] = "OCR 처리 불가"
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", msg))

	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Scanned: 1, Permanent: 1}, *stats)

	failure, ok := st.Failure("corr-2")
	require.True(t, ok)
	assert.Equal(t, "extract-text-queue", failure.OriginQueue)
	assert.Equal(t, "OCR 처리 불가", failure.FailureClass)
	assert.Equal(t, "실종자를 찾습니다", failure.Title)
	assert.Equal(t, "boom", failure.Detail)
	assert.Equal(t, 3, failure.SweepCount)
	assert.True(t, failure.EventAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		"the parsed occurrence date is the ledger's event timestamp")
	assert.JSONEq(t, body, string(failure.Payload))

	// Nothing flows back anywhere.
	assert.Zero(t, b.Len("extract-text-queue"))
	assert.Zero(t, b.Len("dead-letter-queue"))
}

func TestSweepWriteOffFlagsManualReview(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	caseID, err := st.CreateCase(ctx, store.CaseSeed{CorrelationID: "corr-3", PostURL: "u", Title: "t"})
	require.NoError(t, err)

	body := `{"correlation_id":"corr-3","case_id":` + jsonInt(caseID) + `}`
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", deadMessage("corr-3", "finalize-queue", 3, body)))

	_, err = s.Sweep(ctx)
	require.NoError(t, err)

	c, _ := st.Case(caseID)
	assert.True(t, c.ManualReview)
}

func TestSweepFallsBackToQueueClass(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	body := `{"created_at":"2026-08-01T09:30:00Z"}`
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", deadMessage("corr-4", "crawl-queue", 3, body)))

	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	failure, ok := st.Failure("corr-4")
	require.True(t, ok)
	assert.Equal(t, pipeline.ClassCrawlFailed, failure.FailureClass)
	assert.True(t, failure.EventAt.Equal(time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)),
		"a corpse without parsed fields falls back to the entry timestamp")
}

func TestSweepUnknowableOriginWritesOff(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	msg := broker.Message{Body: []byte(`{"correlation_id":"corr-5"}`)}
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", msg))

	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Permanent)

	failure, ok := st.Failure("corr-5")
	require.True(t, ok, "correlation id recovered from the body")
	assert.Equal(t, pipeline.ClassUnknown, failure.FailureClass)
	assert.Empty(t, failure.OriginQueue)
}

func TestSweepLegacyDeathCountFallback(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	// A corpse from before the counter existed: four deaths mean three
	// sweeps already happened, so it is written off, not requeued.
	msg := broker.Message{Body: []byte(`{}`), Metadata: map[string]string{
		"x-first-death-queue": "store-queue",
		"x-death-count":       "4",
		"x-correlation-id":    "corr-6",
	}}
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", msg))

	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Permanent)
	assert.Equal(t, 1, st.Failures())
}

func TestSweepDrainsWholeQueue(t *testing.T) {
	s, b, st := newTestSweeper(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		corr := "corr-batch-" + jsonInt(int64(i))
		require.NoError(t, b.Publish(ctx, "dead-letter-queue", deadMessage(corr, "crawl-queue", 0, `{}`)))
	}
	require.NoError(t, b.Publish(ctx, "dead-letter-queue", deadMessage("corr-doomed", "crawl-queue", 3, `{}`)))

	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Scanned)
	assert.Equal(t, 5, stats.Requeued)
	assert.Equal(t, 1, stats.Permanent)
	assert.Equal(t, 5, b.Len("crawl-queue"))
	assert.Equal(t, 1, st.Failures())
}

func TestSweepSingleFlight(t *testing.T) {
	s, b, _ := newTestSweeper(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "dead-letter-queue", deadMessage("corr-sf", "crawl-queue", 0, `{}`)))

	// Simulate a sweep in flight by holding the lock.
	require.True(t, s.mu.TryLock())
	stats, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats, "an overlapping sweep is skipped, not queued")
	s.mu.Unlock()

	stats, err = s.Sweep(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Requeued)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
