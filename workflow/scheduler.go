package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/cgov/workflow/workflow/errs"
)

// RetryPolicy configures how an executor retries a failing unit of work.
// MaxAttempts includes the initial attempt, so 1 means "no retries".
type RetryPolicy struct {
	MaxAttempts int
	InitialDelay time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Exponential selects backoff shape: when false, NextDelay always
	// returns InitialDelay (a constant delay); when true, it grows
	// geometrically by Multiplier (default 2) with jitter.
	Exponential bool
}

// Validate checks the policy's internal consistency.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return errs.ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.InitialDelay > 0 && rp.MaxDelay < rp.InitialDelay {
		return errs.ErrInvalidRetryPolicy
	}
	return nil
}

// NextDelay computes the delay before the given zero-based retry attempt.
func (rp RetryPolicy) NextDelay(attempt int, rng *rand.Rand) time.Duration {
	if !rp.Exponential {
		return rp.InitialDelay
	}

	multiplier := rp.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := rp.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
	}
	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(delay) + 1))
	} else {
		jitter = time.Duration(rand.Int63n(int64(delay) + 1)) // #nosec G404 -- jitter for retry timing only
	}
	return delay/2 + jitter/2
}

// ConstantRetryPolicy builds a policy with a fixed delay between attempts.
// BaseWorkflow.RunStep does not consult a RetryPolicy: it retries with each
// Step's own MaxAttempts and constant RetryDelay.
func ConstantRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialDelay: delay}
}

// ExponentialRetryPolicy builds a base-2 exponential backoff policy capped
// at maxDelay, for a DAG node's own execute to use when it retries
// internally. The executors in this package do not use it themselves;
// compensation retries wait the Compensation's constant RetryDelay.
func ExponentialRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialDelay: initialDelay, MaxDelay: maxDelay, Multiplier: 2.0, Exponential: true}
}

// sleep waits out a retry delay, honoring context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// runWithTimeout executes fn under an optional timeout. A zero timeout
// means "no deadline". It distinguishes a timeout from an ordinary error so
// callers can classify StepTimeout vs StepFailure.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if timeout <= 0 {
		v, err := fn(ctx)
		return v, false, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if timeoutCtx.Err() != nil && o.err != nil {
			return zero, true, o.err
		}
		return o.v, false, o.err
	case <-timeoutCtx.Done():
		return zero, true, timeoutCtx.Err()
	}
}

// idempotencyKey derives a stable default compensation idempotency key from
// a scope identifier (workflow/saga/DAG id) and a compensation name, per
// the "{id}:{name}" default rule, hashed for a bounded, URL-safe form.
func idempotencyKey(scopeID, name string) string {
	sum := sha256.Sum256([]byte(scopeID + ":" + name))
	return hex.EncodeToString(sum[:])[:32]
}

// defaultIdempotencyKey returns c.IdempotencyKey if set, otherwise the
// derived default.
func defaultIdempotencyKey(c *Compensation, scopeID string) string {
	if c.IdempotencyKey != "" {
		return c.IdempotencyKey
	}
	return idempotencyKey(scopeID, c.Name)
}
