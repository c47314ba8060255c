package acquisition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/descriptor"
	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/matcher"
)

const (
	localPathMissingTemplate    = "executor path %s does not exist: %w"
	unexpectedVariantTemplate   = "%s strategy cannot acquire %s descriptors"
	localRebuildDecisionMessage = "local executor rebuild decision"
	reasonFieldName             = "reason"
	changesFieldName            = "changes"
	pathFieldName               = "path"
)

// LocalStrategy acquires executors that live on the local filesystem. Rebuilds are gated by the
// watch matchers and the rebuild policy.
type LocalStrategy struct {
	logger  *zap.Logger
	engine  *matcher.Engine
	builder Builder
}

// NewLocalStrategy constructs a LocalStrategy.
func NewLocalStrategy(logger *zap.Logger, engine *matcher.Engine, builder Builder) *LocalStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = matcher.NewEngine(logger)
	}
	return &LocalStrategy{logger: logger, engine: engine, builder: builder}
}

// Inspect evaluates the watch matchers against the stored signature.
func (strategy *LocalStrategy) Inspect(executionContext context.Context, target Target) (Plan, error) {
	local, isLocal := target.Descriptor.(descriptor.LocalDescriptor)
	if !isLocal {
		return Plan{}, exerrors.WrapMessage(exerrors.OperationLocalAcquire, target.Fingerprint, exerrors.ErrValidation, fmt.Sprintf(unexpectedVariantTemplate, descriptor.VariantLocal, target.Descriptor.Variant()))
	}
	if _, statError := os.Stat(local.Path); statError != nil {
		return Plan{}, exerrors.Wrap(exerrors.OperationLocalAcquire, target.Fingerprint, exerrors.ErrResolution, fmt.Errorf(localPathMissingTemplate, local.Path, statError))
	}

	var previous matcher.Signature
	if target.Previous != nil {
		previous = target.Previous.Signature
	}
	signature, changes, evaluateError := strategy.engine.Evaluate(executionContext, local.Watch, previous)
	if evaluateError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return Plan{}, contextError
		}
		return Plan{}, exerrors.Wrap(exerrors.OperationLocalAcquire, target.Fingerprint, "", evaluateError)
	}

	plan := Plan{Signature: signature, Changes: changes}
	switch {
	case target.Previous == nil:
		plan.Needed, plan.Reason = true, ReasonAbsent
	case local.Rebuild == descriptor.RebuildAlways:
		plan.Needed, plan.Reason = true, ReasonRebuildAlways
	case len(changes) > 0:
		plan.Needed, plan.Reason = true, ReasonWatchChanged
	default:
		plan.Reason = ReasonUpToDate
	}

	strategy.logger.Debug(localRebuildDecisionMessage,
		zap.String(fingerprintFieldName, target.Fingerprint),
		zap.String(pathFieldName, local.Path),
		zap.String(reasonFieldName, string(plan.Reason)),
		zap.Int(changesFieldName, len(changes)),
	)
	return plan, nil
}

// Acquire runs the build for the executor kind, if any, and records the post-build signature.
func (strategy *LocalStrategy) Acquire(executionContext context.Context, target Target, plan Plan) (Outcome, error) {
	local, isLocal := target.Descriptor.(descriptor.LocalDescriptor)
	if !isLocal {
		return Outcome{}, exerrors.WrapMessage(exerrors.OperationLocalAcquire, target.Fingerprint, exerrors.ErrValidation, fmt.Sprintf(unexpectedVariantTemplate, descriptor.VariantLocal, target.Descriptor.Variant()))
	}

	outcome := Outcome{ArtifactPath: local.Path, Kind: local.Kind, Signature: plan.Signature}
	if local.Kind == descriptor.KindNone {
		return outcome, nil
	}

	buildDirectory := local.Path
	if info, statError := os.Stat(local.Path); statError == nil && !info.IsDir() {
		buildDirectory = filepath.Dir(local.Path)
	}
	if buildError := runBuild(executionContext, strategy.builder, target.Fingerprint, local.Kind, buildDirectory); buildError != nil {
		return Outcome{}, buildError
	}
	outcome.Built = true

	signature, _, evaluateError := strategy.engine.Evaluate(executionContext, local.Watch, plan.Signature)
	if evaluateError != nil {
		return Outcome{}, exerrors.Wrap(exerrors.OperationLocalAcquire, target.Fingerprint, "", evaluateError)
	}
	outcome.Signature = signature
	return outcome, nil
}

func runBuild(executionContext context.Context, builder Builder, fingerprint string, kind descriptor.Kind, directory string) error {
	if builder == nil {
		return exerrors.Wrap(exerrors.OperationBuild, fingerprint, exerrors.ErrBuild, ErrCommandExecutorNotConfigured)
	}
	if buildError := builder.Build(executionContext, kind, directory); buildError != nil {
		return exerrors.Wrap(exerrors.OperationBuild, fingerprint, exerrors.ErrBuild, buildError)
	}
	return nil
}
