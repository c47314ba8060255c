package errors

import (
	stdErrors "errors"
	"fmt"
)

// Operation identifies the logical operation producing a contextual error.
type Operation string

const (
	// OperationDescriptorParse denotes descriptor parsing and validation.
	OperationDescriptorParse Operation = "descriptor.parse"
	// OperationCredentialsResolve denotes authentication block conversion.
	OperationCredentialsResolve Operation = "credentials.resolve"
	// OperationHostKeyVerify denotes SSH host-key fingerprint verification.
	OperationHostKeyVerify Operation = "credentials.hostkey"
	// OperationGitAcquire denotes git clone/fetch/checkout acquisition.
	OperationGitAcquire Operation = "acquire.git"
	// OperationLocalAcquire denotes local file-system acquisition.
	OperationLocalAcquire Operation = "acquire.local"
	// OperationBuild denotes executor build steps.
	OperationBuild Operation = "acquire.build"
	// OperationCacheLoad denotes cache metadata loading.
	OperationCacheLoad Operation = "cache.load"
	// OperationCacheCommit denotes cache metadata persistence.
	OperationCacheCommit Operation = "cache.commit"
	// OperationResolve denotes orchestrated executor resolution.
	OperationResolve Operation = "resolve"
)

// Sentinel describes a stable error code shared across components.
type Sentinel string

// Error returns the sentinel code string.
func (sentinel Sentinel) Error() string {
	return string(sentinel)
}

// Code exposes the sentinel code string.
func (sentinel Sentinel) Code() string {
	return string(sentinel)
}

// OperationError annotates an error with operation metadata and the fingerprint or URL it concerns.
type OperationError struct {
	operation Operation
	subject   string
	err       error
	message   string
}

// Error implements the error interface.
func (operationError OperationError) Error() string {
	if len(operationError.message) > 0 {
		if len(operationError.subject) == 0 {
			return fmt.Sprintf("%s: %s", operationError.operation, operationError.message)
		}
		return fmt.Sprintf("%s[%s]: %s", operationError.operation, operationError.subject, operationError.message)
	}
	if len(operationError.subject) == 0 {
		return fmt.Sprintf("%s: %v", operationError.operation, operationError.err)
	}
	return fmt.Sprintf("%s[%s]: %v", operationError.operation, operationError.subject, operationError.err)
}

// Unwrap exposes the underlying error chain.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the originating operation identifier.
func (operationError OperationError) Operation() Operation {
	return operationError.operation
}

// Subject returns the fingerprint or URL related to the error.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code surfaces the sentinel code of the wrapped error when present.
func (operationError OperationError) Code() string {
	if coder, found := findSentinel(operationError.err); found {
		return coder.Code()
	}
	return ""
}

// Wrap constructs an OperationError combining the provided metadata with the base sentinel.
func Wrap(operation Operation, subject string, sentinel Sentinel, detail error) error {
	if len(sentinel) == 0 {
		return OperationError{operation: operation, subject: subject, err: detail}
	}
	baseError := error(sentinel)
	if detail != nil {
		baseError = sentinelDetailError{sentinel: sentinel, detail: detail}
	}
	return OperationError{operation: operation, subject: subject, err: baseError}
}

// WrapMessage constructs an OperationError combining the provided metadata with a formatted message.
func WrapMessage(operation Operation, subject string, sentinel Sentinel, message string) error {
	if len(message) == 0 {
		return Wrap(operation, subject, sentinel, nil)
	}
	return OperationError{operation: operation, subject: subject, err: fmt.Errorf("%w: %s", sentinel, message), message: message}
}

// sentinelDetailError keeps both the sentinel and the detail error reachable through errors.Is/As.
type sentinelDetailError struct {
	sentinel Sentinel
	detail   error
}

func (detailError sentinelDetailError) Error() string {
	return fmt.Sprintf("%s: %v", detailError.sentinel, detailError.detail)
}

func (detailError sentinelDetailError) Unwrap() []error {
	return []error{detailError.sentinel, detailError.detail}
}

func findSentinel(err error) (Sentinel, bool) {
	if err == nil {
		return "", false
	}
	var sentinel Sentinel
	if stdErrors.As(err, &sentinel) {
		return sentinel, true
	}
	return "", false
}

// KindOf returns the taxonomy sentinel carried by the error chain, or an empty sentinel.
func KindOf(err error) Sentinel {
	for _, kind := range Kinds() {
		if stdErrors.Is(err, kind) {
			return kind
		}
	}
	return ""
}

// IsRetryable reports whether a caller may retry the whole resolution.
func IsRetryable(err error) bool {
	return stdErrors.Is(err, ErrNetwork)
}

// Kinds lists the taxonomy sentinels in classification order.
func Kinds() []Sentinel {
	return []Sentinel{
		ErrValidation,
		ErrAuthentication,
		ErrNetwork,
		ErrResolution,
		ErrBuild,
		ErrCacheCorruption,
	}
}

var (
	// ErrValidation indicates a malformed descriptor or matcher. Never retried.
	ErrValidation Sentinel = "validation_error"
	// ErrAuthentication indicates rejected credentials or a host-key mismatch.
	ErrAuthentication Sentinel = "authentication_error"
	// ErrNetwork indicates a transient transport failure the caller may retry.
	ErrNetwork Sentinel = "network_error"
	// ErrResolution indicates a missing ref, branch, tag, or executor path.
	ErrResolution Sentinel = "resolution_error"
	// ErrBuild indicates a build step exited with a non-zero status.
	ErrBuild Sentinel = "build_error"
	// ErrCacheCorruption indicates unreadable or inconsistent cache metadata.
	ErrCacheCorruption Sentinel = "cache_corruption"
)
