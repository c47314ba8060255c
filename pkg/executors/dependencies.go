package executors

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/acquisition"
	"github.com/tyemirov/exres/internal/cache"
	"github.com/tyemirov/exres/internal/credentials"
	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/execshell"
	"github.com/tyemirov/exres/internal/gitrepo"
	"github.com/tyemirov/exres/internal/matcher"
	"github.com/tyemirov/exres/internal/resolver"
)

// DependenciesConfig captures the collaborators required to build a resolver. Nil providers and
// runners fall back to production defaults.
type DependenciesConfig struct {
	LoggerProvider               func() *zap.Logger
	HumanReadableLoggingProvider func() bool
	CacheDirectory               string
	CommandRunner                execshell.CommandRunner
	BuildSteps                   acquisition.BuildSteps
	HostKeyProber                credentials.HostKeyProber
	ProbeTimeout                 time.Duration
}

// DependenciesResult exposes the resolver along with the collaborators it was built from.
type DependenciesResult struct {
	Service           *resolver.Service
	Store             *cache.Store
	ShellExecutor     *execshell.ShellExecutor
	RepositoryManager *gitrepo.RepositoryManager
}

// BuildResolver wires the shell executor, git plumbing, build steps, acquisition strategies and the
// cache store into a resolver service.
func BuildResolver(config DependenciesConfig) (DependenciesResult, error) {
	logger := resolveLogger(config.LoggerProvider)
	humanReadable := false
	if config.HumanReadableLoggingProvider != nil {
		humanReadable = config.HumanReadableLoggingProvider()
	}

	store, storeError := cache.NewStore(config.CacheDirectory, logger)
	if storeError != nil {
		return DependenciesResult{}, fmt.Errorf("executors.dependencies.cache_store: %w", storeError)
	}

	commandRunner := config.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner, humanReadable)
	if executorError != nil {
		return DependenciesResult{}, fmt.Errorf("executors.dependencies.shell_executor: %w", executorError)
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return DependenciesResult{}, fmt.Errorf("executors.dependencies.git_manager: %w", managerError)
	}

	builder, builderError := acquisition.NewCommandBuilder(logger, shellExecutor, config.BuildSteps)
	if builderError != nil {
		return DependenciesResult{}, fmt.Errorf("executors.dependencies.builder: %w", builderError)
	}

	prober := config.HostKeyProber
	if prober == nil {
		prober = credentials.NewSSHHostKeyProber(config.ProbeTimeout)
	}
	sshResolver := credentials.NewSSHResolver(logger, prober)

	gitStrategy := acquisition.NewGitStrategy(logger, repositoryManager, builder, sshResolver)
	strategies := map[descriptor.Variant]acquisition.Strategy{
		descriptor.VariantLocal:   acquisition.NewLocalStrategy(logger, matcher.NewEngine(logger), builder),
		descriptor.VariantGitHTTP: gitStrategy,
		descriptor.VariantGitSSH:  gitStrategy,
	}

	service, serviceError := resolver.NewService(logger, store, strategies)
	if serviceError != nil {
		return DependenciesResult{}, fmt.Errorf("executors.dependencies.resolver: %w", serviceError)
	}

	return DependenciesResult{
		Service:           service,
		Store:             store,
		ShellExecutor:     shellExecutor,
		RepositoryManager: repositoryManager,
	}, nil
}

func resolveLogger(provider func() *zap.Logger) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
