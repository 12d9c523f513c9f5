package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelayBounds(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = rand.New(rand.NewSource(1)) //nolint:gosec

	assert.Equal(t, time.Duration(0), p.Delay(1))

	// attempt 2: 100ms base, attempt 3: 200ms, each with 10-30% jitter.
	for attempt, base := range map[int]time.Duration{
		2: 100 * time.Millisecond,
		3: 200 * time.Millisecond,
	} {
		for i := 0; i < 100; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*1.1), "attempt %d", attempt)
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.3), "attempt %d", attempt)
		}
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := Do(context.Background(), p, nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}
	fatal := errors.New("fatal")

	calls := 0
	err := Do(context.Background(), p, func(err error) bool { return false }, func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	transient := errors.New("transient")

	calls := 0
	err := Do(context.Background(), p, func(err error) bool { return true }, func(context.Context) error {
		calls++
		return transient
	})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func(err error) bool { return true }, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
