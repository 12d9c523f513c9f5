package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule with proportional jitter.
// The zero value is unusable; call DefaultPolicy or set all fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Jitter fraction range applied to each delay, e.g. 0.1..0.3 adds 10-30%.
	JitterMinFrac float64
	JitterMaxFrac float64

	Rand *rand.Rand
}

// DefaultPolicy matches the reconciler's upsert retry schedule:
// 3 attempts, 100ms base, doubling, 10-30% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		Multiplier:    2,
		JitterMinFrac: 0.1,
		JitterMaxFrac: 0.3,
	}
}

// Delay returns the backoff duration before the given attempt (1-based).
// Attempt 1 has no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	frac := p.JitterMinFrac
	if spread := p.JitterMaxFrac - p.JitterMinFrac; spread > 0 {
		r := p.Rand
		if r == nil {
			frac += spread * rand.Float64() //nolint:gosec
		} else {
			frac += spread * r.Float64()
		}
	}
	return time.Duration(base * (1 + frac))
}

// Do runs op up to p.MaxAttempts times, sleeping per the policy between
// attempts. A non-retryable error, a nil error, or context cancellation ends
// the loop immediately; the last error is returned after the final attempt.
func Do(ctx context.Context, p Policy, isRetryable func(error) bool, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		err = op(ctx)
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return err
		}
	}
	return err
}
