package roots

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tyemirov/exres/internal/utils"
	flagutils "github.com/tyemirov/exres/internal/utils/flags"
)

const (
	homeDirectoryPrefix            = "~"
	missingProjectRootErrorMessage = "project root does not exist or is not a directory"
	workingDirectoryErrorTemplate  = "unable to determine working directory: %w"
	homeDirectoryErrorTemplate     = "unable to expand home directory: %w"
	projectRootValidationTemplate  = "%s: %s"
)

// ErrMissingProjectRoot indicates the resolved project root is unusable.
var ErrMissingProjectRoot = errors.New(missingProjectRootErrorMessage)

// Resolve determines the project and workspace roots for a command. Flag values win over configured
// values; the project root falls back to the working directory and the workspace root to the project root.
func Resolve(command *cobra.Command, configured utils.ProjectContext) (utils.ProjectContext, error) {
	flagValues := flagutils.CollectProjectFlags(command)

	projectRoot := firstNonEmpty(flagValues.ProjectRoot, configured.ProjectRoot)
	if len(projectRoot) == 0 {
		workingDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return utils.ProjectContext{}, fmt.Errorf(workingDirectoryErrorTemplate, workingDirectoryError)
		}
		projectRoot = workingDirectory
	}

	normalizedProjectRoot, projectRootError := normalize(projectRoot, "")
	if projectRootError != nil {
		return utils.ProjectContext{}, projectRootError
	}
	projectRootInfo, statError := os.Stat(normalizedProjectRoot)
	if statError != nil || !projectRootInfo.IsDir() {
		return utils.ProjectContext{}, fmt.Errorf(projectRootValidationTemplate, ErrMissingProjectRoot, normalizedProjectRoot)
	}

	workspaceRoot := firstNonEmpty(flagValues.WorkspaceRoot, configured.WorkspaceRoot)
	if len(workspaceRoot) == 0 {
		return utils.ProjectContext{ProjectRoot: normalizedProjectRoot, WorkspaceRoot: normalizedProjectRoot}, nil
	}

	normalizedWorkspaceRoot, workspaceRootError := normalize(workspaceRoot, normalizedProjectRoot)
	if workspaceRootError != nil {
		return utils.ProjectContext{}, workspaceRootError
	}
	return utils.ProjectContext{ProjectRoot: normalizedProjectRoot, WorkspaceRoot: normalizedWorkspaceRoot}, nil
}

// normalize expands a leading tilde and makes the path absolute, anchoring relative paths at base when provided.
func normalize(path string, base string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == homeDirectoryPrefix || strings.HasPrefix(trimmed, homeDirectoryPrefix+string(filepath.Separator)) {
		homeDirectory, homeDirectoryError := os.UserHomeDir()
		if homeDirectoryError != nil {
			return "", fmt.Errorf(homeDirectoryErrorTemplate, homeDirectoryError)
		}
		trimmed = filepath.Join(homeDirectory, strings.TrimPrefix(trimmed, homeDirectoryPrefix))
	}
	if !filepath.IsAbs(trimmed) && len(base) > 0 {
		trimmed = filepath.Join(base, trimmed)
	}
	absolute, absoluteError := filepath.Abs(trimmed)
	if absoluteError != nil {
		return "", absoluteError
	}
	return filepath.Clean(absolute), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
			return trimmed
		}
	}
	return ""
}
