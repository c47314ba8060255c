package execshell

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gitCommandNameStringConstant          = "git"
	cargoCommandNameStringConstant        = "cargo"
	npmCommandNameStringConstant          = "npm"
	commandStartMessageConstant           = "command execution starting"
	commandSuccessMessageConstant         = "command execution completed"
	commandFailureMessageConstant         = "command returned non-zero status"
	commandRunnerErrorMessageConstant     = "command execution error"
	commandNameFieldNameConstant          = "command"
	commandArgumentsFieldNameConstant     = "arguments"
	workingDirectoryFieldNameConstant     = "working_directory"
	environmentKeysFieldNameConstant      = "environment_keys"
	durationFieldNameConstant             = "duration"
	exitCodeFieldNameConstant             = "exit_code"
	standardErrorExcerptFieldNameConstant = "stderr_excerpt"
	urlSchemeSeparatorConstant            = "://"
	urlUserInfoSeparatorConstant          = "@"
)

// CommandName identifies an executable name.
type CommandName string

// Executables the resolver invokes.
const (
	CommandGit   CommandName = CommandName(gitCommandNameStringConstant)
	CommandCargo CommandName = CommandName(cargoCommandNameStringConstant)
	CommandNpm   CommandName = CommandName(npmCommandNameStringConstant)
)

// CommandDetails describes command invocation properties.
// EnvironmentVariables are passed to the process but only their names are logged, so credentials travel there.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand represents a fully qualified command invocation.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures observable command results.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

type lifecycleEvent int

const (
	lifecycleStarted lifecycleEvent = iota
	lifecycleCompleted
	lifecycleExited
	lifecycleErrored
)

type lifecycleReport struct {
	event   lifecycleEvent
	command ShellCommand
	result  ExecutionResult
	failure error
	elapsed time.Duration
}

// ShellExecutor runs git and build commands, logging each lifecycle transition.
type ShellExecutor struct {
	commandRunner        CommandRunner
	logger               *zap.Logger
	humanReadableLogging bool
	messageFormatter     CommandMessageFormatter
}

// NewShellExecutor builds an executor for the provided runner and logger.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		commandRunner:        commandRunner,
		logger:               logger,
		humanReadableLogging: humanReadableLogging,
		messageFormatter:     CommandMessageFormatter{},
	}, nil
}

// Execute runs the command. A non-zero exit yields CommandFailedError and a runner failure
// yields CommandExecutionError; in both cases the returned result is empty.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if len(command.Name) == 0 {
		return ExecutionResult{}, ErrCommandNameMissing
	}

	executor.report(lifecycleReport{event: lifecycleStarted, command: command})
	startedAt := time.Now()
	executionResult, runnerError := executor.commandRunner.Run(executionContext, command)
	elapsed := time.Since(startedAt)

	switch {
	case runnerError != nil:
		executor.report(lifecycleReport{event: lifecycleErrored, command: command, failure: runnerError, elapsed: elapsed})
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runnerError}
	case executionResult.ExitCode != 0:
		executor.report(lifecycleReport{event: lifecycleExited, command: command, result: executionResult, elapsed: elapsed})
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	default:
		executor.report(lifecycleReport{event: lifecycleCompleted, command: command, result: executionResult, elapsed: elapsed})
		return executionResult, nil
	}
}

// ExecuteGit runs the git executable with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

func (executor *ShellExecutor) report(report lifecycleReport) {
	level := zapcore.InfoLevel
	switch report.event {
	case lifecycleExited:
		level = zapcore.WarnLevel
	case lifecycleErrored:
		level = zapcore.ErrorLevel
	}

	if executor.humanReadableLogging {
		executor.logger.Log(level, executor.humanMessage(report))
		return
	}
	executor.logger.Log(level, structuredMessage(report.event), structuredFields(report)...)
}

func (executor *ShellExecutor) humanMessage(report lifecycleReport) string {
	switch report.event {
	case lifecycleCompleted:
		return executor.messageFormatter.BuildSuccessMessage(report.command)
	case lifecycleExited:
		return executor.messageFormatter.BuildFailureMessage(report.command, report.result)
	case lifecycleErrored:
		return executor.messageFormatter.BuildExecutionFailureMessage(report.command, report.failure)
	default:
		return executor.messageFormatter.BuildStartedMessage(report.command)
	}
}

func structuredMessage(event lifecycleEvent) string {
	switch event {
	case lifecycleCompleted:
		return commandSuccessMessageConstant
	case lifecycleExited:
		return commandFailureMessageConstant
	case lifecycleErrored:
		return commandRunnerErrorMessageConstant
	default:
		return commandStartMessageConstant
	}
}

func structuredFields(report lifecycleReport) []zap.Field {
	fields := []zap.Field{zap.String(commandNameFieldNameConstant, string(report.command.Name))}
	switch report.event {
	case lifecycleStarted:
		return append(fields,
			zap.Strings(commandArgumentsFieldNameConstant, RedactArguments(report.command.Details.Arguments)),
			zap.String(workingDirectoryFieldNameConstant, report.command.Details.WorkingDirectory),
			zap.Strings(environmentKeysFieldNameConstant, environmentKeys(report.command.Details.EnvironmentVariables)),
		)
	case lifecycleErrored:
		return append(fields, zap.Duration(durationFieldNameConstant, report.elapsed), zap.Error(report.failure))
	case lifecycleExited:
		return append(fields,
			zap.Duration(durationFieldNameConstant, report.elapsed),
			zap.Int(exitCodeFieldNameConstant, report.result.ExitCode),
			zap.String(standardErrorExcerptFieldNameConstant, outputExcerpt(report.result)),
		)
	default:
		return append(fields, zap.Duration(durationFieldNameConstant, report.elapsed), zap.Int(exitCodeFieldNameConstant, report.result.ExitCode))
	}
}

func environmentKeys(environment map[string]string) []string {
	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RedactArguments masks passwords embedded in URL arguments before they reach logs or error messages.
func RedactArguments(arguments []string) []string {
	redacted := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if !strings.Contains(argument, urlSchemeSeparatorConstant) || !strings.Contains(argument, urlUserInfoSeparatorConstant) {
			redacted = append(redacted, argument)
			continue
		}
		parsed, parseError := url.Parse(argument)
		if parseError != nil {
			redacted = append(redacted, argument)
			continue
		}
		redacted = append(redacted, parsed.Redacted())
	}
	return redacted
}
