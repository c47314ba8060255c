package executors_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/exres/internal/retry"
	"github.com/tyemirov/exres/pkg/executors"
)

func TestWaitForAvailability(testInstance *testing.T) {
	errRegistryRejected := errors.New("registry rejected credentials")

	testCases := []struct {
		name          string
		availableAt   int
		probeError    error
		attempts      int
		expectedCalls int
		expectedError error
	}{
		{name: "available_immediately", availableAt: 1, attempts: 3, expectedCalls: 1},
		{name: "available_on_third_poll", availableAt: 3, attempts: 5, expectedCalls: 3},
		{name: "never_available", availableAt: 10, attempts: 2, expectedCalls: 2, expectedError: executors.ErrNotAvailable},
		{name: "probe_failure_stops", availableAt: 10, probeError: errRegistryRejected, attempts: 5, expectedCalls: 1, expectedError: errRegistryRejected},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			calls := 0
			probe := func(context.Context) (bool, error) {
				calls++
				if testCase.probeError != nil {
					return false, testCase.probeError
				}
				return calls >= testCase.availableAt, nil
			}

			waitError := executors.WaitForAvailability(context.Background(), fastPolicy(testCase.attempts), probe)
			require.Equal(testInstance, testCase.expectedCalls, calls)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, waitError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, waitError)
		})
	}
}

func TestWaitForAvailabilityStopsOnCancellation(testInstance *testing.T) {
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	waitError := executors.WaitForAvailability(cancelledContext, fastPolicy(3), func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(testInstance, waitError, context.Canceled)
	require.ErrorIs(testInstance, executors.WaitForAvailability(context.Background(), retry.DefaultPolicy(), nil), retry.ErrOperationMissing)
}
