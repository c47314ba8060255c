// Package flags provides helpers for binding standardized flags to Cobra commands.
package flags

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/exres/internal/utils"
)

const unsupportedOutputFormatTemplate = "unsupported output format %q (expected %s or %s)"

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

// StringFlag returns the flag value and whether it was set explicitly.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return "", false, ErrFlagNotDefined
	}
	value, err := flagSet.GetString(name)
	if err != nil {
		return "", false, err
	}
	return value, flag.Changed, nil
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}

	return nil, nil
}

// CollectProjectFlags inspects the command's flags to produce project roots.
func CollectProjectFlags(command *cobra.Command) utils.ProjectContext {
	projectContext := utils.ProjectContext{}
	if command == nil {
		return projectContext
	}

	if projectRoot, _, projectRootError := StringFlag(command, ProjectRootFlagName); projectRootError == nil {
		projectContext.ProjectRoot = strings.TrimSpace(projectRoot)
	}
	if workspaceRoot, _, workspaceRootError := StringFlag(command, WorkspaceRootFlagName); workspaceRootError == nil {
		projectContext.WorkspaceRoot = strings.TrimSpace(workspaceRoot)
	}

	return projectContext
}

// ResolveOutputFormat returns the normalized output format, preferring the value stored in the command context.
func ResolveOutputFormat(command *cobra.Command) (string, error) {
	outputFormat := ""
	if command != nil {
		if contextFormat, available := utils.NewCommandContextAccessor().OutputFormat(command.Context()); available {
			outputFormat = contextFormat
		}
	}
	if len(outputFormat) == 0 {
		flagValue, _, flagError := StringFlag(command, OutputFlagName)
		if flagError != nil && !errors.Is(flagError, ErrFlagNotDefined) {
			return "", flagError
		}
		outputFormat = flagValue
	}

	normalized := strings.ToLower(strings.TrimSpace(outputFormat))
	switch normalized {
	case "", OutputFormatYAML:
		return OutputFormatYAML, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	default:
		return "", fmt.Errorf(unsupportedOutputFormatTemplate, outputFormat, OutputFormatYAML, OutputFormatJSON)
	}
}
