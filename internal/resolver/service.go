// Package resolver turns executor references into runnable handles, acquiring each fingerprint at
// most once at a time and caching the result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tyemirov/exres/internal/acquisition"
	"github.com/tyemirov/exres/internal/cache"
	"github.com/tyemirov/exres/internal/credentials"
	"github.com/tyemirov/exres/internal/descriptor"
	exerrors "github.com/tyemirov/exres/internal/errors"
)

const (
	// KindNative marks handles that need no toolchain: standard executors and executors without a kind.
	KindNative = "native"

	storeRequiredMessage       = "resolver requires a cache store"
	missingStrategyTemplate    = "no acquisition strategy registered for %s descriptors"
	unexpectedResultTemplate   = "unexpected acquisition result of type %T"
	corruptionRemovalReason    = "cache corruption"
	failureRemovalReason       = "acquisition failed"
	resolvedStandardMessage    = "resolved standard executor"
	reusedExecutorMessage      = "reusing cached executor"
	acquiringExecutorMessage   = "acquiring executor"
	acquiredExecutorMessage    = "acquired executor"
	acquisitionFailedMessage   = "executor acquisition failed"
	discardedCorruptionMessage = "discarding corrupted cache entry"
	cleanupFailedMessage       = "unable to remove failed cache entry"
	joinedAcquisitionMessage   = "waiting for in-flight acquisition"
	fingerprintFieldName       = "fingerprint"
	urlFieldName               = "url"
	variantFieldName           = "variant"
	stateFieldName             = "state"
	reasonFieldName            = "reason"
	artifactPathFieldName      = "artifact_path"
	durationFieldName          = "duration"
	standardFieldName          = "standard"
	waitersFieldName           = "waiters"
	revisionFieldName          = "revision"
)

// ErrStoreNotConfigured indicates a Service was constructed without a cache store.
var ErrStoreNotConfigured = errors.New(storeRequiredMessage)

// State is the lifecycle position of a fingerprint.
type State string

// Fingerprint states.
const (
	StateAbsent    State = "absent"
	StateAcquiring State = "acquiring"
	StateReady     State = "ready"
)

// Request is one resolution: a raw descriptor value and the roots it is interpreted against.
// ProjectRoot falls back to WorkspaceRoot when empty.
type Request struct {
	Value         any
	ProjectRoot   string
	WorkspaceRoot string
}

// Handle is the runnable artifact returned to the caller.
type Handle struct {
	Path        string `json:"path" yaml:"path"`
	Kind        string `json:"kind" yaml:"kind"`
	Standard    string `json:"standard,omitempty" yaml:"standard,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Revision    string `json:"revision,omitempty" yaml:"revision,omitempty"`
	Acquired    bool   `json:"acquired" yaml:"acquired"`
}

// Service coordinates parsing, cache lookup and acquisition.
type Service struct {
	logger     *zap.Logger
	parser     *descriptor.Parser
	store      *cache.Store
	strategies map[descriptor.Variant]acquisition.Strategy
	group      singleflight.Group
	mutex      sync.Mutex
	waiters    map[string]int
	acquiring  map[string]bool
	now        func() time.Time
}

// NewService constructs a Service. strategies maps every non-standard variant to its strategy.
func NewService(logger *zap.Logger, store *cache.Store, strategies map[descriptor.Variant]acquisition.Strategy) (*Service, error) {
	if store == nil {
		return nil, ErrStoreNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registered := make(map[descriptor.Variant]acquisition.Strategy, len(strategies))
	for variant, strategy := range strategies {
		registered[variant] = strategy
	}
	return &Service{
		logger:     logger,
		parser:     descriptor.NewParser(logger),
		store:      store,
		strategies: registered,
		waiters:    make(map[string]int),
		acquiring:  make(map[string]bool),
		now:        time.Now,
	}, nil
}

// Resolve parses a descriptor value and resolves it.
func (service *Service) Resolve(executionContext context.Context, request Request) (Handle, error) {
	projectRoot := request.ProjectRoot
	if len(strings.TrimSpace(projectRoot)) == 0 {
		projectRoot = request.WorkspaceRoot
	}
	parsed, parseError := service.parser.Parse(request.Value, projectRoot)
	if parseError != nil {
		return Handle{}, exerrors.Wrap(exerrors.OperationDescriptorParse, "", "", parseError)
	}
	return service.ResolveDescriptor(executionContext, parsed)
}

// ResolveDescriptor returns a handle for a parsed descriptor. Concurrent calls for one fingerprint
// share a single acquisition. The acquisition is detached from the caller's context so it can
// finish and populate the cache; a caller whose context ends stops waiting and gets its error.
func (service *Service) ResolveDescriptor(executionContext context.Context, executorDescriptor descriptor.Descriptor) (Handle, error) {
	if standard, isStandard := executorDescriptor.(descriptor.StandardDescriptor); isStandard {
		service.logger.Debug(resolvedStandardMessage, zap.String(standardFieldName, string(standard.Name)))
		return Handle{Kind: KindNative, Standard: string(standard.Name)}, nil
	}

	subject := credentials.RedactURL(executorDescriptor.Location())
	fingerprint, fingerprintError := Fingerprint(executorDescriptor)
	if fingerprintError != nil {
		return Handle{}, exerrors.Wrap(exerrors.OperationResolve, subject, exerrors.ErrValidation, fingerprintError)
	}
	strategy, registered := service.strategies[executorDescriptor.Variant()]
	if !registered {
		return Handle{}, exerrors.WrapMessage(exerrors.OperationResolve, subject, exerrors.ErrValidation, fmt.Sprintf(missingStrategyTemplate, executorDescriptor.Variant()))
	}

	if waiting := service.join(fingerprint); waiting > 1 {
		service.logger.Debug(joinedAcquisitionMessage, zap.String(fingerprintFieldName, fingerprint), zap.Int(waitersFieldName, waiting))
	}
	defer service.leave(fingerprint)

	detachedContext := context.WithoutCancel(executionContext)
	var led atomic.Bool
	resultChannel := service.group.DoChan(fingerprint, func() (any, error) {
		led.Store(true)
		return service.acquire(detachedContext, fingerprint, executorDescriptor, strategy)
	})

	select {
	case <-executionContext.Done():
		return Handle{}, executionContext.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			return Handle{}, result.Err
		}
		handle, isHandle := result.Val.(Handle)
		if !isHandle {
			return Handle{}, fmt.Errorf(unexpectedResultTemplate, result.Val)
		}
		// Only the caller whose function ran performed the acquisition.
		if result.Shared && !led.Load() {
			handle.Acquired = false
		}
		return handle, nil
	}
}

// State reports where a fingerprint is in its lifecycle.
func (service *Service) State(fingerprint string) State {
	service.mutex.Lock()
	acquiring := service.acquiring[fingerprint]
	service.mutex.Unlock()
	if acquiring {
		return StateAcquiring
	}
	if _, found, loadError := service.store.Load(fingerprint); loadError == nil && found {
		return StateReady
	}
	return StateAbsent
}

// Pending returns how many callers are currently resolving a fingerprint.
func (service *Service) Pending(fingerprint string) int {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return service.waiters[fingerprint]
}

func (service *Service) acquire(executionContext context.Context, fingerprint string, executorDescriptor descriptor.Descriptor, strategy acquisition.Strategy) (Handle, error) {
	startedAt := service.now()
	location := credentials.RedactURL(executorDescriptor.Location())

	previous, found, loadError := service.store.Load(fingerprint)
	if loadError != nil {
		if !errors.Is(loadError, exerrors.ErrCacheCorruption) {
			return Handle{}, loadError
		}
		service.logger.Warn(discardedCorruptionMessage, zap.String(fingerprintFieldName, fingerprint), zap.Error(loadError))
		if removeError := service.store.Remove(fingerprint, corruptionRemovalReason); removeError != nil {
			return Handle{}, removeError
		}
		found = false
	}

	target := acquisition.Target{
		Fingerprint:         fingerprint,
		Descriptor:          executorDescriptor,
		EntryDirectory:      service.store.EntryDirectory(fingerprint),
		RepositoryDirectory: service.store.RepositoryDirectory(fingerprint),
		ScratchDirectory:    service.store.ScratchDirectory(fingerprint),
	}
	if found {
		target.Previous = &previous
	}

	plan, inspectError := strategy.Inspect(executionContext, target)
	if inspectError != nil {
		return Handle{}, inspectError
	}
	if !plan.Needed {
		service.logger.Debug(reusedExecutorMessage,
			zap.String(fingerprintFieldName, fingerprint),
			zap.String(urlFieldName, location),
			zap.String(reasonFieldName, string(plan.Reason)),
			zap.String(artifactPathFieldName, previous.ArtifactPath),
		)
		return handleFromRecord(previous, false), nil
	}

	service.setAcquiring(fingerprint, true)
	defer service.setAcquiring(fingerprint, false)

	service.logger.Info(acquiringExecutorMessage,
		zap.String(fingerprintFieldName, fingerprint),
		zap.String(urlFieldName, location),
		zap.String(variantFieldName, string(executorDescriptor.Variant())),
		zap.String(reasonFieldName, string(plan.Reason)),
	)

	record := cache.Record{
		Fingerprint: fingerprint,
		Status:      cache.StatusAcquiring,
		Variant:     string(executorDescriptor.Variant()),
		Location:    location,
	}
	if found {
		record.CreatedAt = previous.CreatedAt
		record.BuiltAt = previous.BuiltAt
	}
	if _, commitError := service.store.Commit(record); commitError != nil {
		return Handle{}, service.discard(fingerprint, commitError)
	}

	outcome, acquireError := strategy.Acquire(executionContext, target, plan)
	if acquireError != nil {
		return Handle{}, service.discard(fingerprint, acquireError)
	}

	record.Status = cache.StatusReady
	record.ArtifactPath = outcome.ArtifactPath
	record.Kind = string(outcome.Kind)
	record.Revision = outcome.Revision
	record.Signature = outcome.Signature
	if outcome.Built {
		builtAt := service.now().UTC()
		record.BuiltAt = &builtAt
	}
	committed, commitError := service.store.Commit(record)
	if commitError != nil {
		return Handle{}, service.discard(fingerprint, commitError)
	}

	service.logger.Info(acquiredExecutorMessage,
		zap.String(fingerprintFieldName, fingerprint),
		zap.String(urlFieldName, location),
		zap.String(stateFieldName, string(StateReady)),
		zap.String(artifactPathFieldName, committed.ArtifactPath),
		zap.String(revisionFieldName, committed.Revision),
		zap.Duration(durationFieldName, service.now().Sub(startedAt)),
	)
	return handleFromRecord(committed, true), nil
}

// discard removes the partially populated entry so the next resolution starts from Absent.
func (service *Service) discard(fingerprint string, cause error) error {
	service.logger.Warn(acquisitionFailedMessage,
		zap.String(fingerprintFieldName, fingerprint),
		zap.String(stateFieldName, string(StateAbsent)),
		zap.Error(cause),
	)
	if removeError := service.store.Remove(fingerprint, failureRemovalReason); removeError != nil {
		service.logger.Error(cleanupFailedMessage, zap.String(fingerprintFieldName, fingerprint), zap.Error(removeError))
	}
	return cause
}

func (service *Service) join(fingerprint string) int {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.waiters[fingerprint]++
	return service.waiters[fingerprint]
}

func (service *Service) leave(fingerprint string) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.waiters[fingerprint]--
	if service.waiters[fingerprint] <= 0 {
		delete(service.waiters, fingerprint)
	}
}

func (service *Service) setAcquiring(fingerprint string, acquiring bool) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	if acquiring {
		service.acquiring[fingerprint] = true
		return
	}
	delete(service.acquiring, fingerprint)
}

func handleFromRecord(record cache.Record, acquired bool) Handle {
	kind := record.Kind
	if len(kind) == 0 {
		kind = KindNative
	}
	return Handle{
		Path:        record.ArtifactPath,
		Kind:        kind,
		Fingerprint: record.Fingerprint,
		Revision:    record.Revision,
		Acquired:    acquired,
	}
}
