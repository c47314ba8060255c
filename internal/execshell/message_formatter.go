package execshell

import (
	"fmt"
	"strings"
)

const (
	humanStartedTemplateConstant          = "Running %s"
	humanSucceededTemplateConstant        = "Finished %s"
	humanFailedTemplateConstant           = "%s failed (exit code %d)"
	humanFailedWithDetailTemplateConstant = "%s failed (exit code %d: %s)"
	humanExecutionFailureTemplateConstant = "%s failed: %v"
	humanWorkingDirectoryTemplateConstant = "%s (in %s)"
)

// CommandMessageFormatter renders human-readable lifecycle messages for console logging.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command that is about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(humanStartedTemplateConstant, formatter.describe(command))
}

// BuildSuccessMessage describes a command that completed successfully.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(humanSucceededTemplateConstant, formatter.describe(command))
}

// BuildFailureMessage describes a command that exited with a non-zero status.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	detail := outputExcerpt(result)
	if len(detail) == 0 {
		return fmt.Sprintf(humanFailedTemplateConstant, formatter.describe(command), result.ExitCode)
	}
	return fmt.Sprintf(humanFailedWithDetailTemplateConstant, formatter.describe(command), result.ExitCode, detail)
}

// BuildExecutionFailureMessage describes a command the runner could not execute.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return fmt.Sprintf(humanExecutionFailureTemplateConstant, formatter.describe(command), failure)
}

func (formatter CommandMessageFormatter) describe(command ShellCommand) string {
	description := strings.TrimSpace(strings.Join(append([]string{string(command.Name)}, RedactArguments(command.Details.Arguments)...), " "))
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return description
	}
	return fmt.Sprintf(humanWorkingDirectoryTemplateConstant, description, workingDirectory)
}
