// Package version reports the exres release identifier from build metadata or the source checkout.
package version

import (
	"context"
	"errors"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/execshell"
)

const (
	unknownVersionFallbackConstant            = "unknown"
	buildInfoDevelVersionValue                = "devel"
	buildInfoDevelVersionWrapped              = "(devel)"
	buildInfoRevisionSettingKey               = "vcs.revision"
	buildInfoModifiedSettingKey               = "vcs.modified"
	buildInfoModifiedSuffix                   = "-dirty"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitShowTopLevelFlagConstant               = "--show-toplevel"
	gitHeadReferenceConstant                  = "HEAD"
	gitDescribeSubcommandConstant             = "describe"
	gitTagsFlagConstant                       = "--tags"
	gitExactMatchFlagConstant                 = "--exact-match"
	gitLongFlagConstant                       = "--long"
	gitDirtyFlagConstant                      = "--dirty"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
	gitExecutorMissingMessageConstant         = "git executor not configured"
)

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// GitExecutor runs git for checkout-based detection.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Info is the full version report printed by the CLI.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
	GoVersion string `json:"go_version,omitempty" yaml:"go_version,omitempty"`
}

// Detector resolves application version strings.
type Detector struct {
	buildInfoProvider BuildInfoProvider
	gitExecutor       GitExecutor
	workingDirectory  string
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	GitExecutor       GitExecutor
	WorkingDirectory  string
}

// NewDetector constructs a Detector with the supplied dependencies or production defaults.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	executor := dependencies.GitExecutor
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
		if creationError != nil {
			return nil, creationError
		}
		executor = shellExecutor
	}

	workingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(workingDirectory) == 0 {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError == nil {
			workingDirectory = currentDirectory
		}
	}

	return &Detector{
		buildInfoProvider: provider,
		gitExecutor:       executor,
		workingDirectory:  workingDirectory,
	}, nil
}

// Detect resolves the full version report using the supplied dependencies.
func Detect(executionContext context.Context, dependencies Dependencies) Info {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return Info{Version: unknownVersionFallbackConstant}
	}
	return detector.Describe(executionContext)
}

// Describe returns the version together with the source revision and toolchain when known.
func (detector *Detector) Describe(executionContext context.Context) Info {
	if detector == nil {
		return Info{Version: unknownVersionFallbackConstant}
	}

	info := Info{Version: detector.Version(executionContext)}
	buildInfo := detector.readBuildInfo()
	if buildInfo != nil {
		info.GoVersion = buildInfo.GoVersion
		info.Revision = revisionFromBuildInfo(buildInfo)
	}
	if len(info.Revision) == 0 {
		info.Revision = detector.runGit(executionContext, detector.resolveRepositoryRoot(executionContext), []string{gitRevParseSubcommandConstant, gitHeadReferenceConstant})
	}
	return info
}

// Version returns the detected application version string: the module version stamped at build
// time, else the exact tag of the checkout, else a long describe, else "unknown".
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}

	if buildVersion := detector.versionFromBuildInfo(); len(buildVersion) > 0 {
		return buildVersion
	}

	repositoryRoot := detector.resolveRepositoryRoot(executionContext)

	if exactVersion := detector.runGit(executionContext, repositoryRoot, []string{gitDescribeSubcommandConstant, gitTagsFlagConstant, gitExactMatchFlagConstant}); len(exactVersion) > 0 {
		return exactVersion
	}

	if longVersion := detector.runGit(executionContext, repositoryRoot, []string{gitDescribeSubcommandConstant, gitTagsFlagConstant, gitLongFlagConstant, gitDirtyFlagConstant}); len(longVersion) > 0 {
		return longVersion
	}

	return unknownVersionFallbackConstant
}

func (detector *Detector) readBuildInfo() *debug.BuildInfo {
	if detector.buildInfoProvider == nil {
		return nil
	}
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available {
		return nil
	}
	return buildInfo
}

func (detector *Detector) versionFromBuildInfo() string {
	buildInfo := detector.readBuildInfo()
	if buildInfo == nil {
		return ""
	}

	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) == 0 {
		return ""
	}

	if strings.EqualFold(trimmedVersion, buildInfoDevelVersionValue) || strings.EqualFold(trimmedVersion, buildInfoDevelVersionWrapped) {
		return ""
	}

	return trimmedVersion
}

func revisionFromBuildInfo(buildInfo *debug.BuildInfo) string {
	revision := ""
	modified := false
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case buildInfoRevisionSettingKey:
			revision = strings.TrimSpace(setting.Value)
		case buildInfoModifiedSettingKey:
			modified = setting.Value == "true"
		}
	}
	if len(revision) > 0 && modified {
		return revision + buildInfoModifiedSuffix
	}
	return revision
}

func (detector *Detector) resolveRepositoryRoot(executionContext context.Context) string {
	if len(detector.workingDirectory) == 0 {
		return ""
	}

	topLevel := detector.runGit(executionContext, detector.workingDirectory, []string{gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant})
	if len(topLevel) == 0 {
		return detector.workingDirectory
	}
	return topLevel
}

func (detector *Detector) runGit(executionContext context.Context, workingDirectory string, arguments []string) string {
	executionResult, executionError := detector.executeGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
	})
	if executionError != nil {
		return ""
	}
	return strings.TrimSpace(executionResult.StandardOutput)
}

func (detector *Detector) executeGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	if detector.gitExecutor == nil {
		return execshell.ExecutionResult{}, errors.New(gitExecutorMissingMessageConstant)
	}

	details.EnvironmentVariables = map[string]string{
		gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentValueConstant,
	}

	return detector.gitExecutor.ExecuteGit(executionContext, details)
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
