// Package credentials converts descriptor authentication blocks into git process environments.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
)

const (
	gitConfigCountVariable        = "GIT_CONFIG_COUNT"
	gitConfigKeyVariableTemplate  = "GIT_CONFIG_KEY_%d"
	gitConfigValueTemplate        = "GIT_CONFIG_VALUE_%d"
	gitTerminalPromptVariable     = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabled     = "0"
	cleanupFailureMessageTemplate = "unable to remove credential file %s: %w"
)

// GitEnvironment carries what a git process needs to reach a remote: the remote URL to use and
// environment variables holding credentials. Secrets only ever live in Variables and in files
// removed by Cleanup.
type GitEnvironment struct {
	RemoteURL string
	Variables map[string]string
	files     []string
}

// Cleanup removes temporary credential files.
func (environment GitEnvironment) Cleanup() error {
	var cleanupErrors []error
	for _, path := range environment.files {
		if removeError := os.Remove(path); removeError != nil && !errors.Is(removeError, os.ErrNotExist) {
			cleanupErrors = append(cleanupErrors, fmt.Errorf(cleanupFailureMessageTemplate, path, removeError))
		}
	}
	return errors.Join(cleanupErrors...)
}

// gitConfigEntries accumulates ordered git configuration overrides passed through the environment.
type gitConfigEntries struct {
	keys   []string
	values []string
}

func (entries *gitConfigEntries) add(key string, value string) {
	entries.keys = append(entries.keys, key)
	entries.values = append(entries.values, value)
}

func (entries *gitConfigEntries) apply(variables map[string]string) {
	if len(entries.keys) == 0 {
		return
	}
	variables[gitConfigCountVariable] = strconv.Itoa(len(entries.keys))
	for index := range entries.keys {
		variables[fmt.Sprintf(gitConfigKeyVariableTemplate, index)] = entries.keys[index]
		variables[fmt.Sprintf(gitConfigValueTemplate, index)] = entries.values[index]
	}
}

// RedactURL hides any password embedded in a remote URL so it can appear in logs and errors.
func RedactURL(rawURL string) string {
	parsed, parseError := url.Parse(rawURL)
	if parseError != nil {
		return rawURL
	}
	return parsed.Redacted()
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
