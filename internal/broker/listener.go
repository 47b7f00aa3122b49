package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/metrics"
)

// Handler processes one message. A non-nil error triggers the listener's
// retry loop; once attempts are exhausted the message is dead-lettered.
type Handler func(ctx context.Context, msg Message) error

type attemptKey struct{}

// WithDeliveryAttempt annotates ctx with the 1-based delivery attempt.
func WithDeliveryAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// DeliveryAttempt reports the 1-based delivery attempt of the current
// handler invocation, or 1 when the context carries none.
func DeliveryAttempt(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}

// ListenerConfig tunes one queue listener.
type ListenerConfig struct {
	Queue           string
	Concurrency     int
	Retry           RetryPolicy
	DeadLetterQueue string
	ReceiveWait     time.Duration

	// Classify derives a ledger classification from the final failure,
	// stamped into dead-letter metadata. Optional.
	Classify func(err error) string
}

// Listener pulls messages from one queue and drives them through the
// handler with in-process retry and dead-letter routing. The same
// listener fronts every transport, so retry semantics never depend on
// which broker is configured.
type Listener struct {
	broker  Broker
	handler Handler
	cfg     ListenerConfig
	log     *zap.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewListener builds a listener for one queue. Zero config fields get
// working defaults.
func NewListener(b Broker, handler Handler, cfg ListenerConfig, log *zap.Logger) *Listener {
	metrics.Init()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = DefaultDeadLetterQueue
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = time.Second
	}
	cfg.Retry = cfg.Retry.normalized()
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		broker:  b,
		handler: handler,
		cfg:     cfg,
		log:     log.With(zap.String("queue", cfg.Queue)),
		sleep:   sleepCtx,
	}
}

// Run pulls and processes messages until ctx is canceled. It returns
// once every in-flight handler has finished.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("listener started", zap.Int("concurrency", l.cfg.Concurrency))

	var wg sync.WaitGroup
	sem := make(chan struct{}, l.cfg.Concurrency)

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		msg, err := l.broker.Receive(ctx, l.cfg.Queue, l.cfg.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			l.log.Warn("receive failed", zap.Error(err))
			if err := l.sleep(ctx, l.cfg.ReceiveWait); err != nil {
				break
			}
			continue
		}
		if msg == nil {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Shutting down with a message in hand: process it inline so
			// it is not lost.
			l.process(context.WithoutCancel(ctx), *msg)
			goto done
		}
		wg.Add(1)
		go func(m Message) {
			defer wg.Done()
			defer func() { <-sem }()
			l.process(ctx, m)
		}(*msg)
	}

done:
	wg.Wait()
	l.log.Info("listener stopped")
	return nil
}

// process drives one message through the retry loop and, on exhaustion,
// dead-letters it.
func (l *Listener) process(ctx context.Context, msg Message) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	corrID := CorrelationID(&msg)
	var lastErr error

	for attempt := 1; attempt <= l.cfg.Retry.MaxAttempts; attempt++ {
		lastErr = l.handler(WithDeliveryAttempt(ctx, attempt), msg.Clone())
		if lastErr == nil {
			metrics.ObserveMessage(l.cfg.Queue, "success")
			return
		}

		if attempt == l.cfg.Retry.MaxAttempts {
			break
		}

		backoff := l.cfg.Retry.Backoff(attempt)
		l.log.Warn("handler failed, retrying",
			zap.String("correlation_id", corrID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))
		metrics.ObserveRetry(l.cfg.Queue)

		if err := l.sleep(ctx, backoff); err != nil {
			// Shutdown mid-backoff. Dead-letter rather than drop: the
			// sweeper can still bring the message back.
			break
		}
	}

	l.deadLetter(ctx, msg, lastErr)
}

// deadLetter stamps death metadata onto the message and publishes it to
// the dead-letter queue.
func (l *Listener) deadLetter(ctx context.Context, msg Message, cause error) {
	class := ""
	if l.cfg.Classify != nil {
		class = l.cfg.Classify(cause)
	}
	markDeath(&msg, l.cfg.Queue, cause, class)

	if err := l.broker.Publish(context.WithoutCancel(ctx), l.cfg.DeadLetterQueue, msg); err != nil {
		l.log.Error("dead-letter publish failed, message lost",
			zap.String("correlation_id", CorrelationID(&msg)),
			zap.Error(err))
		metrics.ObserveMessage(l.cfg.Queue, "lost")
		return
	}

	l.log.Error("message dead-lettered",
		zap.String("correlation_id", CorrelationID(&msg)),
		zap.Int("death_count", DeathCount(&msg)),
		zap.String("failure_class", class),
		zap.Error(cause))
	metrics.ObserveDeadLetter(l.cfg.Queue)
	metrics.ObserveMessage(l.cfg.Queue, "dead_letter")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}
