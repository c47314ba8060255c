package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/matcher"
)

const (
	fingerprintVersion         = "v1"
	unsupportedVariantTemplate = "cannot fingerprint %s descriptors"
)

// identity is the canonical, secret-free projection of a descriptor that determines its cache key.
// Field order is fixed by the struct and maps are encoded with sorted keys.
type identity struct {
	Version        string             `json:"version"`
	Variant        descriptor.Variant `json:"variant"`
	Location       string             `json:"location"`
	Kind           descriptor.Kind    `json:"kind,omitempty"`
	Pin            *descriptor.Pin    `json:"pin,omitempty"`
	Path           string             `json:"path,omitempty"`
	Insecure       bool               `json:"insecure,omitempty"`
	HeaderNames    []string           `json:"header_names,omitempty"`
	Fingerprints   []string           `json:"fingerprints,omitempty"`
	Authentication *authIdentity      `json:"authentication,omitempty"`
	Watch          []watchIdentity    `json:"watch,omitempty"`
}

type authIdentity struct {
	Scheme   string `json:"scheme"`
	Username string `json:"username,omitempty"`
}

type watchIdentity struct {
	Pattern  string           `json:"pattern"`
	Exclude  []string         `json:"exclude,omitempty"`
	Root     string           `json:"root"`
	Behavior matcher.Behavior `json:"behavior"`
}

// Fingerprint returns the cache key of a descriptor: the hex SHA-256 of its canonical identity.
// The identity covers the location, the effective pin, the subdirectory, the kind, the
// authentication scheme and username, and the watch matchers. Secret values, header values, the
// pull flag and the rebuild policy never contribute.
func Fingerprint(executorDescriptor descriptor.Descriptor) (string, error) {
	canonical := identity{
		Version:  fingerprintVersion,
		Variant:  executorDescriptor.Variant(),
		Location: withoutPassword(executorDescriptor.Location()),
	}

	switch typed := executorDescriptor.(type) {
	case descriptor.LocalDescriptor:
		canonical.Location = typed.Path
		canonical.Kind = typed.Kind
		for _, watched := range typed.Watch {
			canonical.Watch = append(canonical.Watch, watchIdentity{
				Pattern:  watched.Pattern,
				Exclude:  watched.Exclude,
				Root:     watched.Root,
				Behavior: watched.Behavior,
			})
		}
	case descriptor.GitHTTPDescriptor:
		applyGitOptions(&canonical, typed.GitOptions)
		canonical.Insecure = typed.Insecure
		for name := range typed.Headers {
			canonical.HeaderNames = append(canonical.HeaderNames, name)
		}
		sort.Strings(canonical.HeaderNames)
		if typed.Authentication != nil {
			canonical.Authentication = &authIdentity{Scheme: string(typed.Authentication.Mode), Username: typed.Authentication.Username}
		}
	case descriptor.GitSSHDescriptor:
		applyGitOptions(&canonical, typed.GitOptions)
		canonical.Insecure = typed.Insecure
		canonical.Fingerprints = append([]string(nil), typed.Fingerprints...)
		sort.Strings(canonical.Fingerprints)
		if typed.Authentication != nil {
			canonical.Authentication = &authIdentity{Scheme: string(typed.Authentication.Method), Username: typed.Authentication.Username}
		}
	case descriptor.StandardDescriptor:
	default:
		return "", fmt.Errorf(unsupportedVariantTemplate, executorDescriptor.Variant())
	}

	encoded, encodeError := json.Marshal(canonical)
	if encodeError != nil {
		return "", encodeError
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}

func applyGitOptions(canonical *identity, options descriptor.GitOptions) {
	pin := options.Pin()
	canonical.Pin = &pin
	canonical.Path = options.Path
	canonical.Kind = options.Kind
}

// withoutPassword drops the password from URL userinfo and keeps the username.
func withoutPassword(location string) string {
	parsed, parseError := url.Parse(location)
	if parseError != nil || parsed.User == nil {
		return location
	}
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return location
	}
	parsed.User = url.User(parsed.User.Username())
	return parsed.String()
}
