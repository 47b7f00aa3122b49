// Package sweeper drains the dead-letter queue on a fixed cadence,
// returning salvageable messages to their origin queue and writing off
// the rest as permanent failures.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/broker"
	"github.com/topoom/casefeed/internal/metrics"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/store"
)

// Config tunes the sweeper.
type Config struct {
	// Interval between sweep cycles.
	Interval time.Duration
	// MaxSweepAttempts is the ceiling on the per-message sweep counter.
	// A message that has already been swept this many times is written
	// off instead of requeued.
	MaxSweepAttempts int
	// ReceiveWait bounds each dead-letter receive.
	ReceiveWait time.Duration
	// MaxMessagesPerSweep bounds one cycle so a sweep always terminates
	// even if messages flow back onto the queue while it runs.
	MaxMessagesPerSweep int
	// DeadLetterQueue overrides the queue being swept.
	DeadLetterQueue string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.MaxSweepAttempts <= 0 {
		c.MaxSweepAttempts = 3
	}
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = time.Second
	}
	if c.MaxMessagesPerSweep <= 0 {
		c.MaxMessagesPerSweep = 500
	}
	if c.DeadLetterQueue == "" {
		c.DeadLetterQueue = broker.DefaultDeadLetterQueue
	}
	return c
}

// Stats summarizes one sweep cycle.
type Stats struct {
	Scanned           int
	Requeued          int
	Permanent         int
	RepublishFailures int
}

// Sweeper drains the dead-letter queue. At most one sweep runs at a
// time; a cycle that fires while the previous one is still draining is
// skipped, not queued.
type Sweeper struct {
	broker broker.Broker
	ledger store.FailureLedger
	cases  store.CaseStore
	cfg    Config
	log    *zap.Logger

	mu sync.Mutex
}

// New builds a sweeper. cases may be nil; when present, written-off
// messages flag their case for manual review.
func New(b broker.Broker, ledger store.FailureLedger, cases store.CaseStore, cfg Config, log *zap.Logger) *Sweeper {
	metrics.Init()
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		broker: b,
		ledger: ledger,
		cases:  cases,
		cfg:    cfg.withDefaults(),
		log:    log.Named("sweeper"),
	}
}

// Run sweeps on the configured interval until ctx is canceled. The
// first sweep happens after one full interval, not at startup.
func (s *Sweeper) Run(ctx context.Context) error {
	cfg := s.cfg
	s.log.Info("sweeper started",
		zap.Duration("interval", cfg.Interval),
		zap.Int("max_sweep_attempts", cfg.MaxSweepAttempts))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			stats, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn("sweep cycle failed", zap.Error(err))
				continue
			}
			if stats != nil {
				s.log.Info("sweep cycle finished",
					zap.Int("scanned", stats.Scanned),
					zap.Int("requeued", stats.Requeued),
					zap.Int("permanent", stats.Permanent),
					zap.Int("republish_failures", stats.RepublishFailures))
			}
		}
	}
}

// Sweep drains the dead-letter queue once. A nil Stats with a nil error
// means another sweep was already running and this one was skipped.
func (s *Sweeper) Sweep(ctx context.Context) (*Stats, error) {
	if !s.mu.TryLock() {
		s.log.Debug("sweep already in progress, skipping")
		return nil, nil
	}
	defer s.mu.Unlock()

	stats := &Stats{}
	for stats.Scanned < s.cfg.MaxMessagesPerSweep {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		msg, err := s.broker.Receive(ctx, s.cfg.DeadLetterQueue, s.cfg.ReceiveWait)
		if err != nil {
			return stats, fmt.Errorf("failed to receive from dead-letter queue: %w", err)
		}
		if msg == nil {
			break
		}
		stats.Scanned++
		s.sweepMessage(ctx, *msg, stats)
	}

	metrics.ObserveSweepRun()
	return stats, nil
}

// sweepMessage decides one corpse's fate: requeue with a bumped counter,
// or write it off.
func (s *Sweeper) sweepMessage(ctx context.Context, msg broker.Message, stats *Stats) {
	corrID := broker.CorrelationID(&msg)
	origin := broker.OriginQueue(&msg)
	count := broker.SweepCount(&msg)

	if origin == "" {
		s.log.Warn("dead-lettered message has no origin, writing off",
			zap.String("correlation_id", corrID))
		s.writeOff(ctx, msg, origin, count, stats)
		return
	}

	if count >= s.cfg.MaxSweepAttempts {
		s.writeOff(ctx, msg, origin, count, stats)
		return
	}

	// The counter is bumped before republish so a crash between the two
	// errs toward writing off, never toward an extra attempt.
	requeued := msg.Clone()
	broker.SetSweepCount(&requeued, count+1)

	if err := s.broker.Publish(ctx, origin, requeued); err != nil {
		s.log.Warn("failed to republish, returning to dead-letter queue",
			zap.String("correlation_id", corrID),
			zap.String("origin_queue", origin),
			zap.Error(err))
		stats.RepublishFailures++
		metrics.ObserveRepublishFailure()
		// Return the untouched original so the failed attempt does not
		// consume one of the message's sweeps.
		if err := s.broker.Publish(ctx, s.cfg.DeadLetterQueue, msg); err != nil {
			s.log.Error("failed to return message to dead-letter queue, message lost",
				zap.String("correlation_id", corrID),
				zap.Error(err))
		}
		return
	}

	stats.Requeued++
	metrics.ObserveSweepRequeue()
	s.log.Info("message requeued",
		zap.String("correlation_id", corrID),
		zap.String("origin_queue", origin),
		zap.Int("sweep_count", count+1))
}

// writeOff records a permanent failure for a message the sweeper is
// giving up on.
func (s *Sweeper) writeOff(ctx context.Context, msg broker.Message, origin string, count int, stats *Stats) {
	probe := probeBody(msg.Body)

	corrID := broker.CorrelationID(&msg)
	if corrID == "" {
		corrID = probe.CorrelationID
	}

	class := broker.FailureClass(&msg)
	if class == "" {
		class = pipeline.QueueFailureClass(origin)
	}

	failure := store.PermanentFailure{
		CorrelationID: corrID,
		OriginQueue:   origin,
		FailureClass:  class,
		Title:         probe.Title,
		Detail:        broker.Exception(&msg),
		SweepCount:    count,
		EventAt:       probe.eventAt(),
		Payload:       msg.Body,
	}
	if err := s.ledger.Record(ctx, failure); err != nil {
		s.log.Error("failed to record permanent failure, returning to dead-letter queue",
			zap.String("correlation_id", corrID),
			zap.Error(err))
		if err := s.broker.Publish(ctx, s.cfg.DeadLetterQueue, msg); err != nil {
			s.log.Error("failed to return message to dead-letter queue, message lost",
				zap.String("correlation_id", corrID),
				zap.Error(err))
		}
		return
	}

	if s.cases != nil && probe.CaseID > 0 {
		if err := s.cases.SetManualReview(ctx, probe.CaseID, true); err != nil {
			s.log.Warn("failed to flag case for manual review",
				zap.Int64("case_id", probe.CaseID),
				zap.Error(err))
		}
	}

	stats.Permanent++
	metrics.ObservePermanentFailure(origin)
	s.log.Warn("message written off as permanent failure",
		zap.String("correlation_id", corrID),
		zap.String("origin_queue", origin),
		zap.String("failure_class", class),
		zap.Int("sweep_count", count))
}

// bodyProbe is the subset of fields every stage envelope shares, pulled
// out of the dead body without knowing which stage it came from.
type bodyProbe struct {
	CorrelationID string    `json:"correlation_id"`
	CaseID        int64     `json:"case_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	Parsed        struct {
		OccurredAt string `json:"occurred_at"`
	} `json:"parsed"`
}

// eventAt is the original event's timestamp for the ledger: the parsed
// occurrence date when the corpse made it past OCR, otherwise when the
// post entered the pipeline.
func (p bodyProbe) eventAt() time.Time {
	if t, err := time.Parse("2006-01-02", p.Parsed.OccurredAt); err == nil {
		return t
	}
	return p.CreatedAt
}

func probeBody(body []byte) bodyProbe {
	var p bodyProbe
	// A body that does not decode still gets a ledger entry; the probe
	// fields just stay empty.
	_ = json.Unmarshal(body, &p)
	return p
}
