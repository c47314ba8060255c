package cli

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/exres/internal/acquisition"
	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/retry"
)

func TestResolverConfigurationBuildSteps(testInstance *testing.T) {
	testCases := []struct {
		name          string
		build         map[string][][]string
		expected      acquisition.BuildSteps
		expectedError string
	}{
		{
			name:     "defaults_when_unset",
			expected: acquisition.DefaultBuildSteps(),
		},
		{
			name:  "override_one_kind",
			build: map[string][][]string{"node": {{"pnpm", "install"}, {" pnpm ", "build"}}},
			expected: acquisition.BuildSteps{
				descriptor.KindRust: acquisition.DefaultBuildSteps()[descriptor.KindRust],
				descriptor.KindNode: {{"pnpm", "install"}, {"pnpm", "build"}},
			},
		},
		{
			name:          "unknown_kind",
			build:         map[string][][]string{"python": {{"pip", "install", "."}}},
			expectedError: `unknown executor kind "python"`,
		},
		{
			name:          "empty_step",
			build:         map[string][][]string{"rust": {{" "}}},
			expectedError: "resolver.build.rust: step 0 is empty",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := ApplicationResolverConfiguration{Build: testCase.build}
			steps, stepsError := configuration.BuildSteps()
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(testInstance, stepsError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, stepsError)
			require.Equal(testInstance, testCase.expected, steps)
		})
	}
}

func TestResolverConfigurationRetryPolicy(testInstance *testing.T) {
	unset, unsetError := ApplicationResolverConfiguration{}.RetryPolicy()
	require.NoError(testInstance, unsetError)
	require.Equal(testInstance, retry.DefaultPolicy(), unset)

	configured := retry.Policy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2}
	policy, policyError := ApplicationResolverConfiguration{Retry: configured}.RetryPolicy()
	require.NoError(testInstance, policyError)
	require.Equal(testInstance, configured, policy)

	_, invalidError := ApplicationResolverConfiguration{Retry: retry.Policy{InitialDelay: time.Second}}.RetryPolicy()
	require.ErrorContains(testInstance, invalidError, "resolver.retry")
}

func TestResolverConfigurationCacheRoot(testInstance *testing.T) {
	defaultRoot, defaultError := ApplicationResolverConfiguration{}.CacheRoot()
	require.NoError(testInstance, defaultError)
	require.Equal(testInstance, filepath.Join(xdg.CacheHome, "exres"), defaultRoot)

	homeDirectory := testInstance.TempDir()
	testInstance.Setenv("HOME", homeDirectory)
	expandedRoot, expandedError := ApplicationResolverConfiguration{CacheDirectory: "~/cache/exres"}.CacheRoot()
	require.NoError(testInstance, expandedError)
	require.Equal(testInstance, filepath.Join(homeDirectory, "cache", "exres"), expandedRoot)
}

func TestResolverConfigurationBounds(testInstance *testing.T) {
	_, concurrencyError := ApplicationResolverConfiguration{Concurrency: -1}.ResolvedConcurrency()
	require.Error(testInstance, concurrencyError)

	timeout, timeoutError := ApplicationResolverConfiguration{}.ProbeTimeout()
	require.NoError(testInstance, timeoutError)
	require.Equal(testInstance, 10*time.Second, timeout)

	_, negativeError := ApplicationResolverConfiguration{SSH: ApplicationSSHConfiguration{ProbeTimeout: -time.Second}}.ProbeTimeout()
	require.Error(testInstance, negativeError)
}
