package utils

import (
	"context"
	"strings"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	projectContextKeyConstant               = commandContextKey("projectContext")
	outputFormatContextKeyConstant          = commandContextKey("outputFormat")
	logLevelContextKeyConstant              = commandContextKey("logLevel")
)

type commandContextKey string

// ProjectContext describes where descriptors are read from and where artifacts are consumed.
type ProjectContext struct {
	ProjectRoot   string
	WorkspaceRoot string
}

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// WithProjectContext attaches project roots to the provided context when values are present.
func (accessor CommandContextAccessor) WithProjectContext(parentContext context.Context, project ProjectContext) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	normalizedProjectRoot := strings.TrimSpace(project.ProjectRoot)
	normalizedWorkspaceRoot := strings.TrimSpace(project.WorkspaceRoot)
	if len(normalizedProjectRoot) == 0 && len(normalizedWorkspaceRoot) == 0 {
		return parentContext
	}
	normalized := ProjectContext{ProjectRoot: normalizedProjectRoot, WorkspaceRoot: normalizedWorkspaceRoot}
	return context.WithValue(parentContext, projectContextKeyConstant, normalized)
}

// WithOutputFormat attaches the requested output format to the provided context.
func (accessor CommandContextAccessor) WithOutputFormat(parentContext context.Context, outputFormat string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	trimmedOutputFormat := strings.ToLower(strings.TrimSpace(outputFormat))
	if len(trimmedOutputFormat) == 0 {
		return parentContext
	}
	return context.WithValue(parentContext, outputFormatContextKeyConstant, trimmedOutputFormat)
}

// WithLogLevel attaches the effective log level to the provided context.
func (accessor CommandContextAccessor) WithLogLevel(parentContext context.Context, logLevel string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	trimmedLogLevel := strings.TrimSpace(logLevel)
	if len(trimmedLogLevel) == 0 {
		return parentContext
	}
	return context.WithValue(parentContext, logLevelContextKeyConstant, trimmedLogLevel)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	configurationFilePath, configurationFilePathAvailable := executionContext.Value(configurationFilePathContextKeyConstant).(string)
	if !configurationFilePathAvailable {
		return "", false
	}
	return configurationFilePath, true
}

// ProjectContext extracts project roots from the provided execution context.
func (accessor CommandContextAccessor) ProjectContext(executionContext context.Context) (ProjectContext, bool) {
	if executionContext == nil {
		return ProjectContext{}, false
	}
	value, valueAvailable := executionContext.Value(projectContextKeyConstant).(ProjectContext)
	if !valueAvailable {
		return ProjectContext{}, false
	}
	return value, true
}

// OutputFormat extracts the requested output format from the provided context.
func (accessor CommandContextAccessor) OutputFormat(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, valueAvailable := executionContext.Value(outputFormatContextKeyConstant).(string)
	if !valueAvailable {
		return "", false
	}
	return value, true
}

// LogLevel extracts the effective log level from the provided context.
func (accessor CommandContextAccessor) LogLevel(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, valueAvailable := executionContext.Value(logLevelContextKeyConstant).(string)
	if !valueAvailable {
		return "", false
	}
	return value, true
}
