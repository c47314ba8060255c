package descriptor

import (
	"github.com/tyemirov/exres/internal/matcher"
)

const redactedValueConstant = "<redacted>"

// Encode returns the canonical, fully defaulted value of a descriptor. Parsing the result with the
// same project root yields an equal descriptor.
func Encode(descriptor Descriptor) map[string]any {
	return encode(descriptor, false)
}

// EncodeRedacted returns the canonical value with secrets and header values replaced, for display.
func EncodeRedacted(descriptor Descriptor) map[string]any {
	return encode(descriptor, true)
}

func encode(descriptor Descriptor, redact bool) map[string]any {
	switch typed := descriptor.(type) {
	case StandardDescriptor:
		return map[string]any{fieldURL: typed.Location()}
	case LocalDescriptor:
		encoded := map[string]any{
			fieldURL:     typed.URL,
			fieldRebuild: string(typed.Rebuild),
			fieldWatch:   encodeMatchers(typed.Watch),
		}
		if typed.Kind != KindNone {
			encoded[fieldKind] = string(typed.Kind)
		}
		return encoded
	case GitHTTPDescriptor:
		headers := make(map[string]any, len(typed.Headers))
		for name, value := range typed.Headers {
			headers[name] = secret(value, redact)
		}
		encoded := map[string]any{
			fieldURL:      typed.URL,
			fieldFormat:   gitFormatConstant,
			fieldInsecure: typed.Insecure,
			fieldHeaders:  headers,
		}
		if typed.Authentication != nil {
			encoded[fieldAuthentication] = encodeHTTPAuthentication(*typed.Authentication, redact)
		}
		encodeGitOptions(encoded, typed.GitOptions)
		return encoded
	case GitSSHDescriptor:
		encoded := map[string]any{
			fieldURL:      typed.URL,
			fieldInsecure: typed.Insecure,
		}
		if len(typed.Fingerprints) > 0 {
			fingerprints := make([]any, 0, len(typed.Fingerprints))
			for _, fingerprint := range typed.Fingerprints {
				fingerprints = append(fingerprints, fingerprint)
			}
			encoded[fieldFingerprints] = fingerprints
		}
		if typed.Authentication != nil {
			encoded[fieldAuthentication] = encodeSSHAuthentication(*typed.Authentication, redact)
		}
		encodeGitOptions(encoded, typed.GitOptions)
		return encoded
	default:
		return map[string]any{}
	}
}

func encodeGitOptions(encoded map[string]any, options GitOptions) {
	encoded[fieldPull] = options.Pull
	optionalFields := map[string]string{
		fieldPath:   options.Path,
		fieldBranch: options.Branch,
		fieldRev:    options.Rev,
		fieldTag:    options.Tag,
		fieldKind:   string(options.Kind),
	}
	for name, value := range optionalFields {
		if len(value) > 0 {
			encoded[name] = value
		}
	}
}

func encodeHTTPAuthentication(authentication HTTPAuthentication, redact bool) map[string]any {
	if authentication.Mode == HTTPAuthenticationBearer {
		return map[string]any{
			fieldMode:  string(authentication.Mode),
			fieldToken: secret(authentication.Token, redact),
		}
	}
	return map[string]any{
		fieldMode:     string(authentication.Mode),
		fieldUsername: authentication.Username,
		fieldPassword: secret(authentication.Password, redact),
	}
}

func encodeSSHAuthentication(authentication SSHAuthentication, redact bool) map[string]any {
	encoded := map[string]any{}
	if len(authentication.Username) > 0 {
		encoded[fieldUsername] = authentication.Username
	}
	if authentication.Method == SSHAuthenticationPassword {
		encoded[fieldPassword] = secret(authentication.Password, redact)
		return encoded
	}
	if IsInlineKey(authentication.Key) {
		encoded[fieldKey] = secret(authentication.Key, redact)
	} else {
		encoded[fieldKey] = authentication.Key
	}
	if len(authentication.Passphrase) > 0 {
		encoded[fieldPassphrase] = secret(authentication.Passphrase, redact)
	}
	return encoded
}

func encodeMatchers(matchers []matcher.Matcher) []any {
	encoded := make([]any, 0, len(matchers))
	for _, watched := range matchers {
		excludes := make([]any, 0, len(watched.Exclude))
		for _, exclude := range watched.Exclude {
			excludes = append(excludes, exclude)
		}
		entry := map[string]any{
			fieldPattern:  watched.Pattern,
			fieldExclude:  excludes,
			fieldBehavior: string(watched.Behavior),
		}
		if len(watched.Root) > 0 {
			entry[fieldRoot] = watched.Root
		}
		encoded = append(encoded, entry)
	}
	return encoded
}

func secret(value string, redact bool) string {
	if redact {
		return redactedValueConstant
	}
	return value
}
