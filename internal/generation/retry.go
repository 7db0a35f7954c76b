package generation

import (
	"context"
	"fmt"
	"time"

	"portraitgen/internal/providers/genai"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy retries a single generation attempt on rate-limit signals only.
// Each rate-limited failure is followed by an exponential pause (BaseDelay,
// 2*BaseDelay, 4*BaseDelay, ...); any other error is returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
	Sleep       Sleeper
	// OnRetry, when set, observes every rate-limited failure before the pause.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy is three attempts with a 1s, 2s, 4s schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Retryable:   genai.IsRateLimited,
		Sleep:       SleepContext,
	}
}

// RateLimitExhaustedError is returned when every attempt was throttled.
type RateLimitExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitExhaustedError) Unwrap() error { return e.Err }

// Delay returns the pause that follows the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Do runs fn under the policy.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.Retryable(err) {
			return err
		}
		lastErr = err
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return &RateLimitExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = genai.IsRateLimited
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}
