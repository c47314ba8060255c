package acquisition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/execshell"
)

const (
	buildStartedMessage     = "building executor"
	buildCompletedMessage   = "built executor"
	kindFieldName           = "kind"
	directoryFieldName      = "directory"
	stepFieldName           = "step"
	commandFieldName        = "command"
	unknownKindTemplate     = "no build steps configured for kind %q"
	emptyStepTemplate       = "build step %d for kind %q is empty"
	commandExecutorRequired = "build command executor not configured"
)

// ErrCommandExecutorNotConfigured indicates a CommandBuilder was constructed without an executor.
var ErrCommandExecutorNotConfigured = errors.New(commandExecutorRequired)

// BuildSteps maps each executor kind to the commands that build it, in order. Every command is
// the executable followed by its arguments.
type BuildSteps map[descriptor.Kind][][]string

// DefaultBuildSteps returns cargo for Rust and npm for Node.
func DefaultBuildSteps() BuildSteps {
	return BuildSteps{
		descriptor.KindRust: {
			{string(execshell.CommandCargo), "build", "--release"},
		},
		descriptor.KindNode: {
			{string(execshell.CommandNpm), "install"},
			{string(execshell.CommandNpm), "run", "build", "--if-present"},
		},
	}
}

// Builder turns checked-out executor sources into a runnable artifact.
type Builder interface {
	Build(executionContext context.Context, kind descriptor.Kind, directory string) error
}

// CommandExecutor runs build commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// CommandBuilder runs configured build steps through the shell executor.
type CommandBuilder struct {
	executor CommandExecutor
	steps    BuildSteps
	logger   *zap.Logger
}

// NewCommandBuilder constructs a CommandBuilder. Nil steps fall back to DefaultBuildSteps.
func NewCommandBuilder(logger *zap.Logger, executor CommandExecutor, steps BuildSteps) (*CommandBuilder, error) {
	if executor == nil {
		return nil, ErrCommandExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if steps == nil {
		steps = DefaultBuildSteps()
	}
	return &CommandBuilder{executor: executor, steps: steps, logger: logger}, nil
}

// Build runs every step for kind in directory and stops at the first failure.
func (builder *CommandBuilder) Build(executionContext context.Context, kind descriptor.Kind, directory string) error {
	steps, found := builder.steps[kind]
	if !found {
		return fmt.Errorf(unknownKindTemplate, kind)
	}

	builder.logger.Info(buildStartedMessage, zap.String(kindFieldName, string(kind)), zap.String(directoryFieldName, directory))
	for index, step := range steps {
		if len(step) == 0 {
			return fmt.Errorf(emptyStepTemplate, index+1, kind)
		}
		command := execshell.ShellCommand{
			Name: execshell.CommandName(step[0]),
			Details: execshell.CommandDetails{
				Arguments:        step[1:],
				WorkingDirectory: directory,
			},
		}
		builder.logger.Debug(buildStartedMessage, zap.Int(stepFieldName, index+1), zap.Strings(commandFieldName, step))
		if _, executionError := builder.executor.Execute(executionContext, command); executionError != nil {
			return executionError
		}
	}
	builder.logger.Info(buildCompletedMessage, zap.String(kindFieldName, string(kind)), zap.String(directoryFieldName, directory))
	return nil
}
