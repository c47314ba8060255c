package gitrepo

import (
	"errors"
	"strings"

	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/execshell"
)

var authenticationFailureIndicators = []string{
	"authentication failed",
	"could not read username",
	"could not read password",
	"permission denied",
	"host key verification failed",
	"invalid credentials",
	"the requested url returned error: 401",
	"the requested url returned error: 403",
	"no more authentication methods",
}

var missingReferenceIndicators = []string{
	"not found in upstream",
	"did not match any file(s) known to git",
	"unknown revision or path not in the working tree",
	"not a valid reference",
	"invalid reference",
	"couldn't find remote ref",
	"no such ref was found",
	"reference is not a tree",
	"repository not found",
	"does not appear to be a git repository",
	"the requested url returned error: 404",
}

var networkFailureIndicators = []string{
	"could not resolve host",
	"could not resolve hostname",
	"connection refused",
	"connection timed out",
	"operation timed out",
	"network is unreachable",
	"failed to connect",
	"connection reset",
	"early eof",
	"the remote end hung up unexpectedly",
	"ssl certificate problem",
	"ssl_connect",
	"gnutls",
	"tls handshake",
	"could not read from remote repository",
}

// ClassifyFailure maps a failed git invocation onto the error taxonomy by inspecting its stderr.
// Failures that match no indicator are classified as fallback.
func ClassifyFailure(err error, fallback exerrors.Sentinel) exerrors.Sentinel {
	summary := strings.ToLower(SummarizeFailure(err))
	if len(summary) == 0 {
		return fallback
	}
	switch {
	case containsAny(summary, authenticationFailureIndicators):
		return exerrors.ErrAuthentication
	case containsAny(summary, missingReferenceIndicators):
		return exerrors.ErrResolution
	case containsAny(summary, networkFailureIndicators):
		return exerrors.ErrNetwork
	default:
		return fallback
	}
}

// SummarizeFailure returns the stderr of a failed git command, or the error text otherwise.
func SummarizeFailure(err error) string {
	if err == nil {
		return ""
	}
	var commandFailure execshell.CommandFailedError
	if errors.As(err, &commandFailure) {
		if detail := commandFailure.Detail(); len(detail) > 0 {
			return detail
		}
		return commandFailure.Error()
	}
	return strings.TrimSpace(err.Error())
}

func containsAny(summary string, indicators []string) bool {
	for _, indicator := range indicators {
		if strings.Contains(summary, indicator) {
			return true
		}
	}
	return false
}
