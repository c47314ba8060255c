package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tyemirov/exres/internal/execshell"
)

const (
	gitCloneSubcommandConstant                = "clone"
	gitFetchSubcommandConstant                = "fetch"
	gitCheckoutSubcommandConstant             = "checkout"
	gitResetSubcommandConstant                = "reset"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitRemoteSubcommandConstant               = "remote"
	gitRemoteSetURLSubcommandConstant         = "set-url"
	gitQuietFlagConstant                      = "--quiet"
	gitBranchFlagConstant                     = "--branch"
	gitDetachFlagConstant                     = "--detach"
	gitHardFlagConstant                       = "--hard"
	gitVerifyFlagConstant                     = "--verify"
	gitNoTagsFlagConstant                     = "--no-tags"
	gitEndOfOptionsConstant                   = "--"
	gitCommitSuffixConstant                   = "^{commit}"
	gitHeadReferenceConstant                  = "HEAD"
	gitFetchHeadReferenceConstant             = "FETCH_HEAD"
	repositoryPathFieldNameConstant           = "repository_path"
	destinationFieldNameConstant              = "destination"
	revisionFieldNameConstant                 = "revision"
	referenceFieldNameConstant                = "reference"
	remoteNameFieldNameConstant               = "remote_name"
	remoteURLFieldNameConstant                = "remote_url"
	requiredValueMessageConstant              = "value required"
	executorNotConfiguredMessageConstant      = "git executor not configured"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	cloneOperationNameConstant                = RepositoryOperationName("Clone")
	fetchOperationNameConstant                = RepositoryOperationName("Fetch")
	checkoutOperationNameConstant             = RepositoryOperationName("Checkout")
	resetOperationNameConstant                = RepositoryOperationName("Reset")
	revParseOperationNameConstant             = RepositoryOperationName("RevParse")
	setRemoteURLOperationNameConstant         = RepositoryOperationName("SetRemoteURL")
)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager coordinates Git operations through execshell.
type RepositoryManager struct {
	executor GitCommandExecutor
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// CloneOptions describes a clone. Reference selects a branch or tag; empty clones the default branch.
// Environment carries credentials for the git process.
type CloneOptions struct {
	RemoteURL   string
	Destination string
	Reference   string
	Environment map[string]string
}

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// Clone clones a remote repository into a destination directory that must not exist yet.
func (manager *RepositoryManager) Clone(executionContext context.Context, options CloneOptions) error {
	trimmedRemoteURL := strings.TrimSpace(options.RemoteURL)
	if len(trimmedRemoteURL) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedDestination := strings.TrimSpace(options.Destination)
	if len(trimmedDestination) == 0 {
		return InvalidRepositoryInputError{FieldName: destinationFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandArguments := []string{gitCloneSubcommandConstant, gitQuietFlagConstant}
	if trimmedReference := strings.TrimSpace(options.Reference); len(trimmedReference) > 0 {
		commandArguments = append(commandArguments, gitBranchFlagConstant, trimmedReference)
	}
	commandArguments = append(commandArguments, gitEndOfOptionsConstant, trimmedRemoteURL, filepath.Base(trimmedDestination))

	commandDetails := execshell.CommandDetails{
		Arguments:            commandArguments,
		WorkingDirectory:     filepath.Dir(trimmedDestination),
		EnvironmentVariables: options.Environment,
	}

	_, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryOperationError{Operation: cloneOperationNameConstant, Cause: executionError}
	}
	return nil
}

// Fetch retrieves a single reference from a remote. The fetched commit is available as FETCH_HEAD.
func (manager *RepositoryManager) Fetch(executionContext context.Context, repositoryPath string, remoteName string, reference string, environment map[string]string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:            []string{gitFetchSubcommandConstant, gitQuietFlagConstant, gitNoTagsFlagConstant, trimmedRemote, trimmedReference},
		WorkingDirectory:     trimmedPath,
		EnvironmentVariables: environment,
	}

	_, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryOperationError{Operation: fetchOperationNameConstant, Cause: executionError}
	}
	return nil
}

// CheckoutDetached checks out a revision with a detached HEAD.
func (manager *RepositoryManager) CheckoutDetached(executionContext context.Context, repositoryPath string, revision string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitCheckoutSubcommandConstant, gitQuietFlagConstant, gitDetachFlagConstant, trimmedRevision},
		WorkingDirectory: trimmedPath,
	}

	_, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryOperationError{Operation: checkoutOperationNameConstant, Cause: executionError}
	}
	return nil
}

// ResetHard moves the current checkout to a revision, discarding local modifications.
func (manager *RepositoryManager) ResetHard(executionContext context.Context, repositoryPath string, revision string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitResetSubcommandConstant, gitQuietFlagConstant, gitHardFlagConstant, trimmedRevision},
		WorkingDirectory: trimmedPath,
	}

	_, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryOperationError{Operation: resetOperationNameConstant, Cause: executionError}
	}
	return nil
}

// ResolveCommit returns the full commit hash a reference points to.
func (manager *RepositoryManager) ResolveCommit(executionContext context.Context, repositoryPath string, reference string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		trimmedReference = gitHeadReferenceConstant
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, trimmedReference + gitCommitSuffixConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: revParseOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// FetchHeadDiffers reports whether FETCH_HEAD points to a different commit than HEAD.
func (manager *RepositoryManager) FetchHeadDiffers(executionContext context.Context, repositoryPath string) (bool, string, error) {
	fetched, fetchedError := manager.ResolveCommit(executionContext, repositoryPath, gitFetchHeadReferenceConstant)
	if fetchedError != nil {
		return false, "", fetchedError
	}
	current, currentError := manager.ResolveCommit(executionContext, repositoryPath, gitHeadReferenceConstant)
	if currentError != nil {
		return false, "", currentError
	}
	return fetched != current, fetched, nil
}

// SetRemoteURL sets the remote URL for a remote.
func (manager *RepositoryManager) SetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemoteURL := strings.TrimSpace(remoteURL)
	if len(trimmedRemoteURL) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteSetURLSubcommandConstant, trimmedRemote, trimmedRemoteURL},
		WorkingDirectory: trimmedPath,
	}

	_, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryOperationError{Operation: setRemoteURLOperationNameConstant, Cause: executionError}
	}
	return nil
}
