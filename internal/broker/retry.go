package broker

import "time"

// RetryPolicy controls the in-process redelivery loop: how many times a
// message is attempted before it is dead-lettered, and how long to wait
// between attempts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the stage-queue policy: three attempts with
// backoff 2s, 4s, then doubling up to a 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		Multiplier:     2.0,
		MaxBackoff:     10 * time.Second,
	}
}

// Backoff returns the delay before the given retry. Attempt 1 is the
// first redelivery, so Backoff(1) is the initial interval. The result is
// deterministic; no jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) normalized() RetryPolicy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = 2 * time.Second
	}
	if out.Multiplier < 1 {
		out.Multiplier = 1
	}
	return out
}
