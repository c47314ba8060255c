// Package descriptor parses executor references into validated, fully defaulted descriptors.
package descriptor

import (
	"github.com/tyemirov/exres/internal/matcher"
)

// Variant tags each descriptor shape.
type Variant string

// Descriptor variants.
const (
	VariantStandard Variant = "standard"
	VariantLocal    Variant = "local"
	VariantGitHTTP  Variant = "git_http"
	VariantGitSSH   Variant = "git_ssh"
)

// Descriptor is the closed set of executor descriptor variants.
type Descriptor interface {
	Variant() Variant
	Location() string
	sealed()
}

// StandardName enumerates built-in executors.
type StandardName string

// Built-in executors.
const (
	StandardNoop     StandardName = "noop"
	StandardCommands StandardName = "commands"
	StandardExec     StandardName = "exec"
)

// Kind names the build toolchain of an executor. The empty kind means directly runnable.
type Kind string

// Executor kinds.
const (
	KindNone Kind = ""
	KindRust Kind = "Rust"
	KindNode Kind = "Node"
)

// RebuildPolicy controls when local executors are rebuilt.
type RebuildPolicy string

// Rebuild policies.
const (
	RebuildOnChanges RebuildPolicy = "OnChanges"
	RebuildAlways    RebuildPolicy = "Always"
)

// StandardDescriptor references a built-in executor. It requires no acquisition.
type StandardDescriptor struct {
	Name StandardName
}

// Variant implements Descriptor.
func (StandardDescriptor) Variant() Variant { return VariantStandard }

// Location implements Descriptor.
func (standard StandardDescriptor) Location() string { return standardSchemePrefix + string(standard.Name) }

func (StandardDescriptor) sealed() {}

// LocalDescriptor references an executor on the local filesystem.
type LocalDescriptor struct {
	URL     string
	Path    string
	Rebuild RebuildPolicy
	Kind    Kind
	Watch   []matcher.Matcher
}

// Variant implements Descriptor.
func (LocalDescriptor) Variant() Variant { return VariantLocal }

// Location implements Descriptor.
func (local LocalDescriptor) Location() string { return local.URL }

func (LocalDescriptor) sealed() {}

// PinType identifies which ref a git checkout targets.
type PinType string

// Pin types in precedence order.
const (
	PinRevision      PinType = "rev"
	PinTag           PinType = "tag"
	PinBranch        PinType = "branch"
	PinDefaultBranch PinType = "default"
)

// Pin is the effective checkout target of a git descriptor.
type Pin struct {
	Type  PinType
	Value string
}

// GitOptions holds the repository options shared by both git transports.
type GitOptions struct {
	Path   string
	Branch string
	Rev    string
	Tag    string
	Kind   Kind
	Pull   bool
}

// Pin resolves the effective checkout target: rev, then tag, then branch, then the default branch.
func (options GitOptions) Pin() Pin {
	switch {
	case len(options.Rev) > 0:
		return Pin{Type: PinRevision, Value: options.Rev}
	case len(options.Tag) > 0:
		return Pin{Type: PinTag, Value: options.Tag}
	case len(options.Branch) > 0:
		return Pin{Type: PinBranch, Value: options.Branch}
	default:
		return Pin{Type: PinDefaultBranch}
	}
}

// IgnoredPins lists the pin fields that are set but lose to a higher-precedence pin.
func (options GitOptions) IgnoredPins() []PinType {
	effective := options.Pin().Type
	ignored := make([]PinType, 0, 2)
	candidates := []struct {
		pinType PinType
		value   string
	}{
		{pinType: PinRevision, value: options.Rev},
		{pinType: PinTag, value: options.Tag},
		{pinType: PinBranch, value: options.Branch},
	}
	for _, candidate := range candidates {
		if len(candidate.value) > 0 && candidate.pinType != effective {
			ignored = append(ignored, candidate.pinType)
		}
	}
	return ignored
}

// PullEnabled reports whether updates should be fetched. Exact revisions are never pulled.
func (options GitOptions) PullEnabled() bool {
	return options.Pull && options.Pin().Type != PinRevision
}

// HTTPAuthenticationMode discriminates HTTP authentication blocks.
type HTTPAuthenticationMode string

// HTTP authentication modes.
const (
	HTTPAuthenticationBasic  HTTPAuthenticationMode = "Basic"
	HTTPAuthenticationDigest HTTPAuthenticationMode = "Digest"
	HTTPAuthenticationBearer HTTPAuthenticationMode = "Bearer"
)

// HTTPAuthentication carries HTTP credentials. Username and Password are set for Basic and
// Digest; Token is set for Bearer.
type HTTPAuthentication struct {
	Mode     HTTPAuthenticationMode
	Username string
	Password string
	Token    string
}

// SSHAuthenticationMethod discriminates SSH authentication blocks.
type SSHAuthenticationMethod string

// SSH authentication methods.
const (
	SSHAuthenticationPassword SSHAuthenticationMethod = "password"
	SSHAuthenticationKey      SSHAuthenticationMethod = "key"
)

// SSHAuthentication carries SSH credentials. Key is either a path or inline PEM material.
type SSHAuthentication struct {
	Method     SSHAuthenticationMethod
	Username   string
	Password   string
	Key        string
	Passphrase string
}

// GitHTTPDescriptor references a git repository reachable over HTTP or HTTPS.
type GitHTTPDescriptor struct {
	URL            string
	Authentication *HTTPAuthentication
	Insecure       bool
	Headers        map[string]string
	GitOptions
}

// Variant implements Descriptor.
func (GitHTTPDescriptor) Variant() Variant { return VariantGitHTTP }

// Location implements Descriptor.
func (gitHTTP GitHTTPDescriptor) Location() string { return gitHTTP.URL }

func (GitHTTPDescriptor) sealed() {}

// GitSSHDescriptor references a git repository reachable over SSH.
type GitSSHDescriptor struct {
	URL            string
	Authentication *SSHAuthentication
	Insecure       bool
	Fingerprints   []string
	GitOptions
}

// Variant implements Descriptor.
func (GitSSHDescriptor) Variant() Variant { return VariantGitSSH }

// Location implements Descriptor.
func (gitSSH GitSSHDescriptor) Location() string { return gitSSH.URL }

func (GitSSHDescriptor) sealed() {}

// GitOptionsOf returns the git options of git descriptors.
func GitOptionsOf(descriptor Descriptor) (GitOptions, bool) {
	switch typed := descriptor.(type) {
	case GitHTTPDescriptor:
		return typed.GitOptions, true
	case GitSSHDescriptor:
		return typed.GitOptions, true
	default:
		return GitOptions{}, false
	}
}
