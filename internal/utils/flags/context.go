package flags

import "github.com/spf13/cobra"

const (
	// ProjectRootFlagName exposes the shared project root flag name.
	ProjectRootFlagName = "project-root"
	// ProjectRootFlagUsage describes the shared project root flag purpose.
	ProjectRootFlagUsage = "Directory that relative descriptor paths resolve against (defaults to the working directory)"
	// WorkspaceRootFlagName exposes the shared workspace root flag name.
	WorkspaceRootFlagName = "workspace-root"
	// WorkspaceRootFlagUsage describes the shared workspace root flag purpose.
	WorkspaceRootFlagUsage = "Workspace directory the resolved executor will operate on (defaults to the project root)"
	// OutputFlagName exposes the shared output format flag name.
	OutputFlagName = "output"
	// OutputFlagShorthand provides the shorthand for the output format flag.
	OutputFlagShorthand = "o"
	// OutputFlagUsage describes the shared output format flag purpose.
	OutputFlagUsage = "Output format (yaml or json)"
	// OutputFormatYAML renders results as YAML.
	OutputFormatYAML = "yaml"
	// OutputFormatJSON renders results as JSON.
	OutputFormatJSON = "json"
)

// ProjectFlagDefinition captures configuration for a single project flag.
type ProjectFlagDefinition struct {
	Name    string
	Usage   string
	Enabled bool
}

// ProjectFlagDefinitions groups project flag definitions.
type ProjectFlagDefinitions struct {
	ProjectRoot   ProjectFlagDefinition
	WorkspaceRoot ProjectFlagDefinition
}

// ProjectFlagValues stores project flag values.
type ProjectFlagValues struct {
	ProjectRoot   string
	WorkspaceRoot string
}

// BindProjectFlags attaches project root flags to the provided command using persistent scope.
func BindProjectFlags(command *cobra.Command, defaults ProjectFlagValues, definitions ProjectFlagDefinitions) *ProjectFlagValues {
	values := defaults
	if command == nil {
		return &values
	}

	persistentFlagSet := command.PersistentFlags()
	if definitions.ProjectRoot.Enabled && len(definitions.ProjectRoot.Name) > 0 && persistentFlagSet.Lookup(definitions.ProjectRoot.Name) == nil {
		persistentFlagSet.StringVar(&values.ProjectRoot, definitions.ProjectRoot.Name, defaults.ProjectRoot, definitions.ProjectRoot.Usage)
	}
	if definitions.WorkspaceRoot.Enabled && len(definitions.WorkspaceRoot.Name) > 0 && persistentFlagSet.Lookup(definitions.WorkspaceRoot.Name) == nil {
		persistentFlagSet.StringVar(&values.WorkspaceRoot, definitions.WorkspaceRoot.Name, defaults.WorkspaceRoot, definitions.WorkspaceRoot.Usage)
	}

	return &values
}

// DefaultProjectFlagDefinitions enables both project flags with their standard names.
func DefaultProjectFlagDefinitions() ProjectFlagDefinitions {
	return ProjectFlagDefinitions{
		ProjectRoot:   ProjectFlagDefinition{Name: ProjectRootFlagName, Usage: ProjectRootFlagUsage, Enabled: true},
		WorkspaceRoot: ProjectFlagDefinition{Name: WorkspaceRootFlagName, Usage: WorkspaceRootFlagUsage, Enabled: true},
	}
}

// EnsureOutputFlag guarantees the shared output flag is available on the command.
func EnsureOutputFlag(command *cobra.Command, defaultValue string) {
	if command == nil {
		return
	}

	flagSet := command.Flags()
	if flagSet.Lookup(OutputFlagName) == nil {
		flagSet.StringP(OutputFlagName, OutputFlagShorthand, defaultValue, OutputFlagUsage)
	}
}
