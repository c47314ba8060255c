package credentials

import (
	"fmt"

	"github.com/tyemirov/exres/internal/descriptor"
)

const (
	// HTTPUsernameVariable holds the username read by the credential helper.
	HTTPUsernameVariable = "EXRES_GIT_USERNAME"
	// HTTPPasswordVariable holds the password read by the credential helper.
	HTTPPasswordVariable = "EXRES_GIT_PASSWORD"

	credentialHelperKey    = "credential.helper"
	credentialHelperScript = `!f() { test "$1" = get || exit 0; echo "username=${EXRES_GIT_USERNAME}"; echo "password=${EXRES_GIT_PASSWORD}"; }; f`
	extraHeaderKey         = "http.extraHeader"
	sslVerifyKey           = "http.sslVerify"
	sslVerifyDisabled      = "false"
	bearerHeaderTemplate   = "Authorization: Bearer %s"
	customHeaderTemplate   = "%s: %s"
)

// ResolveHTTP converts an HTTP descriptor's authentication, headers and transport flags into git
// configuration overrides. Interactive prompts are always disabled.
func ResolveHTTP(gitHTTP descriptor.GitHTTPDescriptor) GitEnvironment {
	variables := map[string]string{gitTerminalPromptVariable: gitTerminalPromptDisabled}
	entries := &gitConfigEntries{}

	if authentication := gitHTTP.Authentication; authentication != nil {
		switch authentication.Mode {
		case descriptor.HTTPAuthenticationBearer:
			entries.add(extraHeaderKey, fmt.Sprintf(bearerHeaderTemplate, authentication.Token))
		default:
			// An empty helper resets helpers inherited from user configuration.
			entries.add(credentialHelperKey, "")
			entries.add(credentialHelperKey, credentialHelperScript)
			variables[HTTPUsernameVariable] = authentication.Username
			variables[HTTPPasswordVariable] = authentication.Password
		}
	}

	for _, name := range sortedKeys(gitHTTP.Headers) {
		entries.add(extraHeaderKey, fmt.Sprintf(customHeaderTemplate, name, gitHTTP.Headers[name]))
	}

	if gitHTTP.Insecure {
		entries.add(sslVerifyKey, sslVerifyDisabled)
	}

	entries.apply(variables)
	return GitEnvironment{RemoteURL: gitHTTP.URL, Variables: variables}
}
