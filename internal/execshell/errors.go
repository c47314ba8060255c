package execshell

import (
	"errors"
	"fmt"
	"strings"
)

const (
	loggerNotConfiguredMessageConstant           = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant    = "shell executor command runner not configured"
	commandNameMissingMessageConstant            = "shell command name not provided"
	commandFailureErrorMessageTemplateConstant   = "%s command exited with code %d"
	commandFailureArgumentsTemplateConstant      = "%s (%s)"
	commandFailureDetailTemplateConstant         = "%s: %s"
	commandExecutionErrorMessageTemplateConstant = "%s command execution failed"
	commandFailureDetailLineLimitConstant        = 3
	commandFailureDetailSeparatorConstant        = " | "
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the command runner dependency was missing.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
	// ErrCommandNameMissing indicates the command name was not provided.
	ErrCommandNameMissing = errors.New(commandNameMissingMessageConstant)
)

// CommandFailedError reports a command that ran and exited with a non-zero code.
// Build and git failures surface to callers through it with a short stderr excerpt.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure with redacted arguments and the stderr excerpt.
func (commandError CommandFailedError) Error() string {
	message := fmt.Sprintf(commandFailureErrorMessageTemplateConstant, commandError.Command.Name, commandError.Result.ExitCode)
	if len(commandError.Command.Details.Arguments) > 0 {
		message = fmt.Sprintf(commandFailureArgumentsTemplateConstant, message, strings.Join(RedactArguments(commandError.Command.Details.Arguments), " "))
	}
	if excerpt := commandError.Detail(); len(excerpt) > 0 {
		message = fmt.Sprintf(commandFailureDetailTemplateConstant, message, excerpt)
	}
	return message
}

// Detail returns up to three leading non-empty lines of stderr, falling back to stdout.
func (commandError CommandFailedError) Detail() string {
	return outputExcerpt(commandError.Result)
}

// CommandExecutionError wraps a runner failure where the command produced no exit code,
// such as a missing executable or a cancelled context.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorMessageTemplateConstant, executionError.Command.Name)
}

// Unwrap exposes the runner failure so callers can match context errors.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

func outputExcerpt(result ExecutionResult) string {
	output := strings.TrimSpace(result.StandardError)
	if len(output) == 0 {
		output = strings.TrimSpace(result.StandardOutput)
	}
	excerptLines := make([]string, 0, commandFailureDetailLineLimitConstant)
	for _, line := range strings.Split(output, "\n") {
		if len(excerptLines) == commandFailureDetailLineLimitConstant {
			break
		}
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			excerptLines = append(excerptLines, trimmed)
		}
	}
	return strings.Join(excerptLines, commandFailureDetailSeparatorConstant)
}
