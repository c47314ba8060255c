// Package retry runs operations under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	defaultMaxAttempts         = 3
	defaultInitialDelay        = 500 * time.Millisecond
	defaultMaxDelay            = 5 * time.Second
	defaultMultiplier          = 2.0
	defaultMaxDuration         = 30 * time.Second
	attemptsExhaustedTemplate  = "gave up after %d attempts: %w"
	durationExhaustedTemplate  = "gave up after %s: %w"
	invalidMaxAttemptsTemplate = "max attempts must be positive, got %d"
)

// ErrOperationMissing indicates Do was called without an operation.
var ErrOperationMissing = errors.New("retry operation not provided")

// Policy bounds a retry loop by attempt count and total elapsed time.
type Policy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
}

// DefaultPolicy returns three attempts starting at 500ms, doubling up to 5s, within 30s overall.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		MaxDuration:  defaultMaxDuration,
	}
}

// Validate reports policies that would never run the operation.
func (policy Policy) Validate() error {
	if policy.MaxAttempts <= 0 {
		return fmt.Errorf(invalidMaxAttemptsTemplate, policy.MaxAttempts)
	}
	return nil
}

// Delay returns the wait before attempt N+1 after attempt N (1-based) failed.
func (policy Policy) Delay(attempt int) time.Duration {
	if policy.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return policy.InitialDelay
	}
	multiplier := policy.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	delay := float64(policy.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	return time.Duration(delay)
}

// Do calls operation until it succeeds, returns an error retryable rejects, or the policy is exhausted.
// The context bounds every wait; cancellation returns the context error immediately.
func Do(executionContext context.Context, policy Policy, retryable func(error) bool, operation func(context.Context, int) error) error {
	if operation == nil {
		return ErrOperationMissing
	}
	if validationError := policy.Validate(); validationError != nil {
		return validationError
	}

	startedAt := time.Now()
	var lastError error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}

		lastError = operation(executionContext, attempt)
		if lastError == nil {
			return nil
		}
		if retryable != nil && !retryable(lastError) {
			return lastError
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if policy.MaxDuration > 0 && time.Since(startedAt)+delay > policy.MaxDuration {
			return fmt.Errorf(durationExhaustedTemplate, policy.MaxDuration, lastError)
		}
		if waitError := sleep(executionContext, delay); waitError != nil {
			return waitError
		}
	}
	return fmt.Errorf(attemptsExhaustedTemplate, policy.MaxAttempts, lastError)
}

func sleep(executionContext context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
