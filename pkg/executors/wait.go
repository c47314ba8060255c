package executors

import (
	"context"
	"errors"

	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/retry"
)

// ErrNotAvailable is what a probe reports, through WaitForAvailability, while the awaited resource
// is not there yet.
var ErrNotAvailable = errors.New("resource not available yet")

// AvailabilityProbe checks once whether a resource (a published package, a pushed tag) exists.
type AvailabilityProbe func(ctx context.Context) (bool, error)

// WaitForAvailability polls probe under policy until it reports availability. Probe errors stop
// the wait unless they are network errors; the policy bounds attempts and total duration.
func WaitForAvailability(ctx context.Context, policy retry.Policy, probe AvailabilityProbe) error {
	if probe == nil {
		return retry.ErrOperationMissing
	}
	return retry.Do(ctx, policy, isWaitRetryable, func(attemptContext context.Context, _ int) error {
		available, probeError := probe(attemptContext)
		if probeError != nil {
			return probeError
		}
		if !available {
			return ErrNotAvailable
		}
		return nil
	})
}

func isWaitRetryable(err error) bool {
	return errors.Is(err, ErrNotAvailable) || exerrors.IsRetryable(err)
}
