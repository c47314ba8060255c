package acquisition_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/exres/internal/acquisition"
	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/execshell"
)

const testBuildDirectoryConstant = "/cache/3f2a9c/repository"

type recordingCommandExecutor struct {
	commands []execshell.ShellCommand
	failOn   int
}

func (executor *recordingCommandExecutor) Execute(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, command)
	if executor.failOn > 0 && len(executor.commands) == executor.failOn {
		return execshell.ExecutionResult{}, execshell.CommandFailedError{
			Command: command,
			Result:  execshell.ExecutionResult{StandardError: "error[E0425]: cannot find value", ExitCode: 101},
		}
	}
	return execshell.ExecutionResult{}, nil
}

func TestNewCommandBuilderRequiresExecutor(testInstance *testing.T) {
	builder, builderError := acquisition.NewCommandBuilder(nil, nil, nil)
	require.ErrorIs(testInstance, builderError, acquisition.ErrCommandExecutorNotConfigured)
	require.Nil(testInstance, builder)
}

func TestCommandBuilderRunsStepsForKind(testInstance *testing.T) {
	testCases := []struct {
		name              string
		kind              descriptor.Kind
		failOn            int
		expectedCommands  [][]string
		expectError       bool
		expectCommandFail bool
	}{
		{
			name:             "rust",
			kind:             descriptor.KindRust,
			expectedCommands: [][]string{{"cargo", "build", "--release"}},
		},
		{
			name: "node",
			kind: descriptor.KindNode,
			expectedCommands: [][]string{
				{"npm", "install"},
				{"npm", "run", "build", "--if-present"},
			},
		},
		{
			name:              "node_install_fails",
			kind:              descriptor.KindNode,
			failOn:            1,
			expectedCommands:  [][]string{{"npm", "install"}},
			expectError:       true,
			expectCommandFail: true,
		},
		{
			name:             "unknown_kind",
			kind:             descriptor.Kind("Zig"),
			expectedCommands: [][]string{},
			expectError:      true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &recordingCommandExecutor{failOn: testCase.failOn}
			builder, builderError := acquisition.NewCommandBuilder(nil, executor, nil)
			require.NoError(testInstance, builderError)

			buildError := builder.Build(context.Background(), testCase.kind, testBuildDirectoryConstant)
			if testCase.expectError {
				require.Error(testInstance, buildError)
			} else {
				require.NoError(testInstance, buildError)
			}
			var commandFailure execshell.CommandFailedError
			require.Equal(testInstance, testCase.expectCommandFail, errors.As(buildError, &commandFailure))

			recorded := make([][]string, 0, len(executor.commands))
			for _, command := range executor.commands {
				require.Equal(testInstance, testBuildDirectoryConstant, command.Details.WorkingDirectory)
				recorded = append(recorded, append([]string{string(command.Name)}, command.Details.Arguments...))
			}
			require.Equal(testInstance, testCase.expectedCommands, recorded)
		})
	}
}

func TestCommandBuilderRejectsEmptyStep(testInstance *testing.T) {
	executor := &recordingCommandExecutor{}
	builder, builderError := acquisition.NewCommandBuilder(nil, executor, acquisition.BuildSteps{descriptor.KindRust: {{}}})
	require.NoError(testInstance, builderError)

	require.Error(testInstance, builder.Build(context.Background(), descriptor.KindRust, testBuildDirectoryConstant))
	require.Empty(testInstance, executor.commands)
}
