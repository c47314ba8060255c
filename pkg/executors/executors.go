package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/resolver"
	"github.com/tyemirov/exres/internal/retry"
)

const (
	resolverMissingMessage = "executor resolver not configured"
	requestFailedTemplate  = "executor %d: %w"
)

// ErrResolverMissing indicates a batch was started without a resolver.
var ErrResolverMissing = errors.New(resolverMissingMessage)

// Request is one executor reference to resolve.
type Request = resolver.Request

// Handle is a resolved, runnable executor.
type Handle = resolver.Handle

// Resolver resolves one executor reference.
type Resolver interface {
	Resolve(ctx context.Context, request Request) (Handle, error)
}

// Outcome is the result of one request within a batch, in request order.
type Outcome struct {
	Request  Request
	Handle   Handle
	Err      error
	Duration time.Duration
}

// ResolveAll resolves requests concurrently with at most concurrency in flight; zero or less means
// no limit. Every request gets an outcome. The returned error joins the individual failures.
func ResolveAll(ctx context.Context, executorResolver Resolver, requests []Request, concurrency int) ([]Outcome, error) {
	if executorResolver == nil {
		return nil, ErrResolverMissing
	}

	outcomes := make([]Outcome, len(requests))
	var group errgroup.Group
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}
	for index := range requests {
		group.Go(func() error {
			startedAt := time.Now()
			handle, resolveError := executorResolver.Resolve(ctx, requests[index])
			outcomes[index] = Outcome{
				Request:  requests[index],
				Handle:   handle,
				Err:      resolveError,
				Duration: time.Since(startedAt),
			}
			return nil
		})
	}
	_ = group.Wait()

	failures := make([]error, 0)
	for index, outcome := range outcomes {
		if outcome.Err != nil {
			failures = append(failures, fmt.Errorf(requestFailedTemplate, index+1, outcome.Err))
		}
	}
	return outcomes, errors.Join(failures...)
}

// ResolveWithRetry resolves one request, retrying the whole resolution on network errors only.
func ResolveWithRetry(ctx context.Context, executorResolver Resolver, request Request, policy retry.Policy) (Handle, error) {
	if executorResolver == nil {
		return Handle{}, ErrResolverMissing
	}
	var handle Handle
	retryError := retry.Do(ctx, policy, exerrors.IsRetryable, func(attemptContext context.Context, _ int) error {
		resolved, resolveError := executorResolver.Resolve(attemptContext, request)
		if resolveError != nil {
			return resolveError
		}
		handle = resolved
		return nil
	})
	return handle, retryError
}

// RetryingResolver decorates a Resolver with ResolveWithRetry.
type RetryingResolver struct {
	Delegate Resolver
	Policy   retry.Policy
}

// Resolve implements Resolver.
func (retrying RetryingResolver) Resolve(ctx context.Context, request Request) (Handle, error) {
	return ResolveWithRetry(ctx, retrying.Delegate, request, retrying.Policy)
}
