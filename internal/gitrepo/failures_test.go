package gitrepo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/execshell"
	"github.com/tyemirov/exres/internal/gitrepo"
)

func TestClassifyFailure(testInstance *testing.T) {
	testCases := []struct {
		name          string
		standardError string
		expected      exerrors.Sentinel
	}{
		{name: "http_authentication", standardError: "fatal: Authentication failed for 'https://git.example.com/team/tool.git/'", expected: exerrors.ErrAuthentication},
		{name: "prompt_disabled", standardError: "fatal: could not read Username for 'https://git.example.com': terminal prompts disabled", expected: exerrors.ErrAuthentication},
		{name: "ssh_publickey", standardError: "git@git.example.com: Permission denied (publickey).\nfatal: Could not read from remote repository.", expected: exerrors.ErrAuthentication},
		{name: "host_key", standardError: "Host key verification failed.\nfatal: Could not read from remote repository.", expected: exerrors.ErrAuthentication},
		{name: "missing_branch", standardError: "fatal: Remote branch nope not found in upstream origin", expected: exerrors.ErrResolution},
		{name: "missing_remote_ref", standardError: "fatal: couldn't find remote ref refs/heads/nope", expected: exerrors.ErrResolution},
		{name: "dns", standardError: "fatal: unable to access 'https://git.example.com/': Could not resolve host: git.example.com", expected: exerrors.ErrNetwork},
		{name: "refused", standardError: "ssh: connect to host git.example.com port 22: Connection refused\nfatal: Could not read from remote repository.", expected: exerrors.ErrNetwork},
		{name: "unrecognized", standardError: "fatal: something unusual", expected: exerrors.ErrBuild},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			failure := gitrepo.RepositoryOperationError{
				Operation: gitrepo.RepositoryOperationName("Clone"),
				Cause: execshell.CommandFailedError{
					Command: execshell.ShellCommand{Name: execshell.CommandGit},
					Result:  execshell.ExecutionResult{StandardError: testCase.standardError, ExitCode: 128},
				},
			}
			require.Equal(testInstance, testCase.expected, gitrepo.ClassifyFailure(failure, exerrors.ErrBuild))
		})
	}
}

func TestClassifyFailureWithoutCommandOutput(testInstance *testing.T) {
	require.Equal(testInstance, exerrors.ErrNetwork, gitrepo.ClassifyFailure(nil, exerrors.ErrNetwork))
	require.Equal(testInstance, exerrors.ErrNetwork, gitrepo.ClassifyFailure(errors.New("exec: \"git\": executable file not found in $PATH"), exerrors.ErrNetwork))
}
