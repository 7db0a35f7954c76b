package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portraitgen/internal/providers/genai"
)

func TestRetryPolicy_RateLimitedEveryTimeIsBounded(t *testing.T) {
	clock := newFakeClock()
	policy := DefaultRetryPolicy()
	policy.Sleep = clock.Sleep

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errRateLimited
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())

	var exhausted *RateLimitExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errRateLimited)
}

func TestRetryPolicy_NonRateLimitFailsFast(t *testing.T) {
	clock := newFakeClock()
	policy := DefaultRetryPolicy()
	policy.Sleep = clock.Sleep

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTerminal
	})

	assert.ErrorIs(t, err, errTerminal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestRetryPolicy_BadRequestMentioning429FailsFast(t *testing.T) {
	clock := newFakeClock()
	policy := DefaultRetryPolicy()
	policy.Sleep = clock.Sleep
	badRequest := &genai.StatusError{StatusCode: 400, Message: "image exceeds 1429 px"}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return badRequest
	})

	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestRetryPolicy_RecoversAfterThrottle(t *testing.T) {
	clock := newFakeClock()
	policy := DefaultRetryPolicy()
	policy.Sleep = clock.Sleep

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("HTTP 429 Too Many Requests")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
}

func TestRetryPolicy_OnRetryObservesEachThrottle(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.Sleep = newFakeClock().Sleep
	var attempts []int
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		assert.Equal(t, policy.Delay(attempt), delay)
	}

	_ = policy.Do(context.Background(), func(ctx context.Context) error { return errRateLimited })
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryPolicy_CanceledContextStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := DefaultRetryPolicy()
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return errRateLimited
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second}
	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, time.Second, policy.Delay(0))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
