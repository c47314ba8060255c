package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/tyemirov/exres/internal/acquisition"
	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/retry"
)

const (
	defaultProbeTimeoutConstant             = 10 * time.Second
	cacheDirectoryNameConstant              = "exres"
	unknownBuildKindTemplateConstant        = "resolver.build: unknown executor kind %q (expected %s or %s)"
	emptyBuildStepTemplateConstant          = "resolver.build.%s: step %d is empty"
	invalidRetryPolicyTemplateConstant      = "resolver.retry: %w"
	negativeConcurrencyTemplateConstant     = "resolver.concurrency must not be negative, got %d"
	negativeProbeTimeoutTemplateConstant    = "resolver.ssh.probe_timeout must not be negative, got %s"
	cacheDirectoryExpansionTemplateConstant = "resolver.cache_directory: %w"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration   `mapstructure:"common"`
	Resolver ApplicationResolverConfiguration `mapstructure:"resolver"`
}

// ApplicationCommonConfiguration stores logging defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationResolverConfiguration configures executor resolution.
type ApplicationResolverConfiguration struct {
	CacheDirectory string                      `mapstructure:"cache_directory"`
	Concurrency    int                         `mapstructure:"concurrency"`
	Retry          retry.Policy                `mapstructure:"retry"`
	Build          map[string][][]string       `mapstructure:"build"`
	SSH            ApplicationSSHConfiguration `mapstructure:"ssh"`
}

// ApplicationSSHConfiguration configures SSH host-key probing.
type ApplicationSSHConfiguration struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// CacheRoot returns the configured cache directory, defaulting to $XDG_CACHE_HOME/exres.
func (configuration ApplicationResolverConfiguration) CacheRoot() (string, error) {
	trimmed := strings.TrimSpace(configuration.CacheDirectory)
	if len(trimmed) == 0 {
		return filepath.Join(xdg.CacheHome, cacheDirectoryNameConstant), nil
	}
	expanded, expansionError := expandHomeDirectory(trimmed)
	if expansionError != nil {
		return "", fmt.Errorf(cacheDirectoryExpansionTemplateConstant, expansionError)
	}
	return filepath.Abs(expanded)
}

// RetryPolicy returns the configured policy. An unset policy yields the default one.
func (configuration ApplicationResolverConfiguration) RetryPolicy() (retry.Policy, error) {
	policy := configuration.Retry
	if policy == (retry.Policy{}) {
		return retry.DefaultPolicy(), nil
	}
	if validationError := policy.Validate(); validationError != nil {
		return retry.Policy{}, fmt.Errorf(invalidRetryPolicyTemplateConstant, validationError)
	}
	return policy, nil
}

// BuildSteps converts the configured command lists into build steps keyed by executor kind.
// Kinds the configuration does not mention keep their default steps.
func (configuration ApplicationResolverConfiguration) BuildSteps() (acquisition.BuildSteps, error) {
	steps := acquisition.DefaultBuildSteps()

	configuredKinds := make([]string, 0, len(configuration.Build))
	for kindName := range configuration.Build {
		configuredKinds = append(configuredKinds, kindName)
	}
	sort.Strings(configuredKinds)

	for _, kindName := range configuredKinds {
		kind, known := parseKind(kindName)
		if !known {
			return nil, fmt.Errorf(unknownBuildKindTemplateConstant, kindName, descriptor.KindRust, descriptor.KindNode)
		}
		commands := make([][]string, 0, len(configuration.Build[kindName]))
		for stepIndex, step := range configuration.Build[kindName] {
			trimmedStep := make([]string, 0, len(step))
			for _, argument := range step {
				if trimmedArgument := strings.TrimSpace(argument); len(trimmedArgument) > 0 {
					trimmedStep = append(trimmedStep, trimmedArgument)
				}
			}
			if len(trimmedStep) == 0 {
				return nil, fmt.Errorf(emptyBuildStepTemplateConstant, kindName, stepIndex)
			}
			commands = append(commands, trimmedStep)
		}
		steps[kind] = commands
	}
	return steps, nil
}

// ResolvedConcurrency returns the bound on parallel resolutions. Zero means unbounded.
func (configuration ApplicationResolverConfiguration) ResolvedConcurrency() (int, error) {
	if configuration.Concurrency < 0 {
		return 0, fmt.Errorf(negativeConcurrencyTemplateConstant, configuration.Concurrency)
	}
	return configuration.Concurrency, nil
}

// ProbeTimeout returns the SSH host-key probe timeout.
func (configuration ApplicationResolverConfiguration) ProbeTimeout() (time.Duration, error) {
	switch {
	case configuration.SSH.ProbeTimeout < 0:
		return 0, fmt.Errorf(negativeProbeTimeoutTemplateConstant, configuration.SSH.ProbeTimeout)
	case configuration.SSH.ProbeTimeout == 0:
		return defaultProbeTimeoutConstant, nil
	default:
		return configuration.SSH.ProbeTimeout, nil
	}
}

func parseKind(kindName string) (descriptor.Kind, bool) {
	for _, kind := range []descriptor.Kind{descriptor.KindRust, descriptor.KindNode} {
		if strings.EqualFold(strings.TrimSpace(kindName), string(kind)) {
			return kind, true
		}
	}
	return descriptor.KindNone, false
}
