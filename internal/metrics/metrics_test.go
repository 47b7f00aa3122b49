package metrics

import "testing"

// TestInitIdempotent ensures repeated Init calls do not re-register collectors.
func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	ObserveMessage("crawl-queue", "ok")
	ObserveRetry("crawl-queue")
	ObserveDeadLetter("crawl-queue")
	IncActiveWorkers()
	DecActiveWorkers()
	ObserveSweepRun()
	ObserveSweepRequeue()
	ObservePermanentFailure("finalize-queue")
	ObserveRepublishFailure()
}

func TestHandlerNotNil(t *testing.T) {
	t.Parallel()

	if Handler() == nil {
		t.Fatal("expected a metrics handler")
	}
}
