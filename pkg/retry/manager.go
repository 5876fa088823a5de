// Package retry implements bounded retries with exponential backoff for
// provider dispatch. The loop is an explicit state machine per call:
// Attempting(n) transitions to Success, Retrying(n+1) or Failed. Backoff is
// deterministic (base 2, no jitter) so the delay before the k-th retry is
// always InitialDelay * 2^(k-1).
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/toniwang/geyago/pkg/utils"
)

// Policy holds the retry budget and backoff seed for one dispatch call
type Policy struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
}

// DefaultPolicy returns the configuration defaults: 3 attempts, 2s seed
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
	}
}

// Delay computes the backoff before the k-th retry (k starts at 1).
// Pure function so it is testable without real time.
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return p.InitialDelay << (retry - 1)
}

// Sleeper abstracts blocking waits so retry timing is testable
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ClockSleeper sleeps on the real clock, honouring context cancellation
type ClockSleeper struct{}

// Sleep waits for d or until ctx is done
func (ClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Operation is one attempt of a retryable call
type Operation func(ctx context.Context, attempt int) error

// Runner executes operations under a retry policy
type Runner struct {
	policy  Policy
	sleeper Sleeper
	logger  *utils.Logger
}

// NewRunner creates a runner. A nil sleeper defaults to the real clock.
func NewRunner(policy Policy, sleeper Sleeper, logger *utils.Logger) *Runner {
	if policy.MaxAttempts < 1 {
		policy = DefaultPolicy()
	}
	if sleeper == nil {
		sleeper = ClockSleeper{}
	}
	return &Runner{
		policy:  policy,
		sleeper: sleeper,
		logger:  logger,
	}
}

// Policy returns the runner's policy
func (r *Runner) Policy() Policy {
	return r.policy
}

// Do executes op until it succeeds, fails fatally, or the budget is spent.
// Retry state (attempt counter, backoff delay, last error) lives entirely
// within one call and is never shared across calls or providers.
func (r *Runner) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dispatch cancelled: %w", err)
		}

		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				r.logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			r.logger.WithField("attempt", attempt).WithError(err).Warn("Operation failed, not retryable")
			return err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.Delay(attempt)
		r.logger.WithField("attempt", attempt).
			WithField("delay", delay).
			WithError(err).
			Info("Operation failed, retrying after delay")

		if err := r.sleeper.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}
