package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/credentials"
	"github.com/tyemirov/exres/internal/descriptor"
	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/gitrepo"
)

const (
	originRemoteName             = "origin"
	fetchHeadReference           = "FETCH_HEAD"
	headReference                = "HEAD"
	tagReferencePrefix           = "refs/tags/"
	cloneCompletedMessage        = "cloned executor repository"
	pullCompletedMessage         = "pulled executor repository"
	gitRebuildDecisionMessage    = "git executor acquisition decision"
	fingerprintFieldName         = "fingerprint"
	urlFieldName                 = "url"
	pinFieldName                 = "pin"
	revisionFieldName            = "revision"
	changedFieldName             = "changed"
	entryDirectoryTemplate       = "unable to prepare cache entry %s: %w"
	subdirectoryMissingTemplate  = "path %q does not exist in the checked out repository: %w"
	gitStrategyName              = "git"
	repositoryManagerRequirement = "git strategy requires a repository manager"
	credentialCleanupMessage     = "unable to remove credential files"
)

// ErrRepositoryManagerNotConfigured indicates a GitStrategy was constructed without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerRequirement)

// SSHCredentialResolver prepares the git environment for SSH descriptors.
type SSHCredentialResolver interface {
	Resolve(executionContext context.Context, gitSSH descriptor.GitSSHDescriptor, scratchDirectory string) (credentials.GitEnvironment, error)
}

// GitStrategy acquires executors from git remotes over HTTP(S) or SSH.
type GitStrategy struct {
	logger       *zap.Logger
	repositories *gitrepo.RepositoryManager
	builder      Builder
	sshResolver  SSHCredentialResolver
}

// NewGitStrategy constructs a GitStrategy. A nil SSH resolver uses credentials.NewSSHResolver.
func NewGitStrategy(logger *zap.Logger, repositories *gitrepo.RepositoryManager, builder Builder, sshResolver SSHCredentialResolver) *GitStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sshResolver == nil {
		sshResolver = credentials.NewSSHResolver(logger, nil)
	}
	return &GitStrategy{logger: logger, repositories: repositories, builder: builder, sshResolver: sshResolver}
}

// Inspect decides between reuse, pull and a fresh clone. It never contacts the remote.
func (strategy *GitStrategy) Inspect(executionContext context.Context, target Target) (Plan, error) {
	options, isGit := descriptor.GitOptionsOf(target.Descriptor)
	if !isGit {
		return Plan{}, exerrors.WrapMessage(exerrors.OperationGitAcquire, target.Fingerprint, exerrors.ErrValidation, fmt.Sprintf(unexpectedVariantTemplate, gitStrategyName, target.Descriptor.Variant()))
	}

	plan := Plan{Needed: true}
	switch {
	case target.Previous == nil:
		plan.Reason = ReasonAbsent
	case !directoryExists(target.RepositoryDirectory):
		plan.Reason = ReasonArtifactMissing
	case options.PullEnabled():
		plan.Reason = ReasonPullRequested
	default:
		plan.Needed, plan.Reason = false, ReasonUpToDate
	}

	strategy.logger.Debug(gitRebuildDecisionMessage,
		zap.String(fingerprintFieldName, target.Fingerprint),
		zap.String(urlFieldName, credentials.RedactURL(target.Descriptor.Location())),
		zap.String(reasonFieldName, string(plan.Reason)),
	)
	return plan, nil
}

// Acquire clones or pulls the repository, checks out the pinned revision and builds it when the
// checkout changed.
func (strategy *GitStrategy) Acquire(executionContext context.Context, target Target, plan Plan) (Outcome, error) {
	options, isGit := descriptor.GitOptionsOf(target.Descriptor)
	if !isGit {
		return Outcome{}, exerrors.WrapMessage(exerrors.OperationGitAcquire, target.Fingerprint, exerrors.ErrValidation, fmt.Sprintf(unexpectedVariantTemplate, gitStrategyName, target.Descriptor.Variant()))
	}
	if strategy.repositories == nil {
		return Outcome{}, exerrors.Wrap(exerrors.OperationGitAcquire, target.Fingerprint, "", ErrRepositoryManagerNotConfigured)
	}

	environment, environmentError := strategy.environment(executionContext, target)
	if environmentError != nil {
		return Outcome{}, environmentError
	}
	defer func() {
		if cleanupError := environment.Cleanup(); cleanupError != nil {
			strategy.logger.Warn(credentialCleanupMessage, zap.String(fingerprintFieldName, target.Fingerprint), zap.Error(cleanupError))
		}
		if len(target.ScratchDirectory) > 0 {
			_ = os.RemoveAll(target.ScratchDirectory)
		}
	}()

	pin := options.Pin()
	changed := true
	if plan.Reason == ReasonPullRequested {
		pulledChange, pullError := strategy.pull(executionContext, target, pin, environment)
		if pullError != nil {
			return Outcome{}, pullError
		}
		changed = pulledChange
	} else if cloneError := strategy.clone(executionContext, target, pin, environment); cloneError != nil {
		return Outcome{}, cloneError
	}

	revision, revisionError := strategy.repositories.ResolveCommit(executionContext, target.RepositoryDirectory, headReference)
	if revisionError != nil {
		return Outcome{}, gitFailure(revisionError, target.Fingerprint, exerrors.ErrResolution)
	}

	root := target.RepositoryDirectory
	if len(options.Path) > 0 {
		root = filepath.Join(target.RepositoryDirectory, filepath.FromSlash(options.Path))
		if _, statError := os.Stat(root); statError != nil {
			return Outcome{}, exerrors.Wrap(exerrors.OperationGitAcquire, target.Fingerprint, exerrors.ErrResolution, fmt.Errorf(subdirectoryMissingTemplate, options.Path, statError))
		}
	}

	outcome := Outcome{ArtifactPath: root, Kind: options.Kind, Revision: revision}
	if options.Kind != descriptor.KindNone && (changed || target.Previous == nil) {
		if buildError := runBuild(executionContext, strategy.builder, target.Fingerprint, options.Kind, root); buildError != nil {
			return Outcome{}, buildError
		}
		outcome.Built = true
	}
	return outcome, nil
}

func (strategy *GitStrategy) environment(executionContext context.Context, target Target) (credentials.GitEnvironment, error) {
	switch typed := target.Descriptor.(type) {
	case descriptor.GitHTTPDescriptor:
		return credentials.ResolveHTTP(typed), nil
	case descriptor.GitSSHDescriptor:
		return strategy.sshResolver.Resolve(executionContext, typed, target.ScratchDirectory)
	default:
		return credentials.GitEnvironment{}, exerrors.WrapMessage(exerrors.OperationGitAcquire, target.Fingerprint, exerrors.ErrValidation, fmt.Sprintf(unexpectedVariantTemplate, gitStrategyName, target.Descriptor.Variant()))
	}
}

func (strategy *GitStrategy) clone(executionContext context.Context, target Target, pin descriptor.Pin, environment credentials.GitEnvironment) error {
	if removeError := os.RemoveAll(target.RepositoryDirectory); removeError != nil {
		return exerrors.Wrap(exerrors.OperationGitAcquire, target.Fingerprint, "", fmt.Errorf(entryDirectoryTemplate, target.RepositoryDirectory, removeError))
	}
	if mkdirError := os.MkdirAll(target.EntryDirectory, 0o755); mkdirError != nil {
		return exerrors.Wrap(exerrors.OperationGitAcquire, target.Fingerprint, "", fmt.Errorf(entryDirectoryTemplate, target.EntryDirectory, mkdirError))
	}

	cloneOptions := gitrepo.CloneOptions{
		RemoteURL:   environment.RemoteURL,
		Destination: target.RepositoryDirectory,
		Environment: environment.Variables,
	}
	if pin.Type == descriptor.PinTag || pin.Type == descriptor.PinBranch {
		cloneOptions.Reference = pin.Value
	}
	if cloneError := strategy.repositories.Clone(executionContext, cloneOptions); cloneError != nil {
		return gitFailure(cloneError, target.Fingerprint, exerrors.ErrNetwork)
	}

	if pin.Type == descriptor.PinRevision {
		if checkoutError := strategy.repositories.CheckoutDetached(executionContext, target.RepositoryDirectory, pin.Value); checkoutError != nil {
			return gitFailure(checkoutError, target.Fingerprint, exerrors.ErrResolution)
		}
	}

	strategy.logger.Info(cloneCompletedMessage,
		zap.String(fingerprintFieldName, target.Fingerprint),
		zap.String(urlFieldName, credentials.RedactURL(target.Descriptor.Location())),
		zap.String(pinFieldName, string(pin.Type)+":"+pin.Value),
	)
	return nil
}

func (strategy *GitStrategy) pull(executionContext context.Context, target Target, pin descriptor.Pin, environment credentials.GitEnvironment) (bool, error) {
	if remoteError := strategy.repositories.SetRemoteURL(executionContext, target.RepositoryDirectory, originRemoteName, environment.RemoteURL); remoteError != nil {
		return false, gitFailure(remoteError, target.Fingerprint, "")
	}
	if fetchError := strategy.repositories.Fetch(executionContext, target.RepositoryDirectory, originRemoteName, fetchReference(pin), environment.Variables); fetchError != nil {
		return false, gitFailure(fetchError, target.Fingerprint, exerrors.ErrNetwork)
	}

	differs, fetchedRevision, compareError := strategy.repositories.FetchHeadDiffers(executionContext, target.RepositoryDirectory)
	if compareError != nil {
		return false, gitFailure(compareError, target.Fingerprint, exerrors.ErrResolution)
	}
	if differs {
		if resetError := strategy.repositories.ResetHard(executionContext, target.RepositoryDirectory, fetchHeadReference); resetError != nil {
			return false, gitFailure(resetError, target.Fingerprint, exerrors.ErrResolution)
		}
	}

	strategy.logger.Info(pullCompletedMessage,
		zap.String(fingerprintFieldName, target.Fingerprint),
		zap.String(revisionFieldName, fetchedRevision),
		zap.Bool(changedFieldName, differs),
	)
	return differs, nil
}

func fetchReference(pin descriptor.Pin) string {
	switch pin.Type {
	case descriptor.PinTag:
		return tagReferencePrefix + pin.Value
	case descriptor.PinBranch:
		return pin.Value
	default:
		return headReference
	}
}

func gitFailure(err error, fingerprint string, fallback exerrors.Sentinel) error {
	return exerrors.Wrap(exerrors.OperationGitAcquire, fingerprint, gitrepo.ClassifyFailure(err, fallback), err)
}

func directoryExists(path string) bool {
	if len(path) == 0 {
		return false
	}
	info, statError := os.Stat(path)
	return statError == nil && info.IsDir()
}
