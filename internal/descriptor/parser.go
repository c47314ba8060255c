package descriptor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/tyemirov/exres/internal/matcher"
)

const (
	standardSchemePrefix = "std:"
	fileSchemePrefix     = "file://"
	httpSchemePrefix     = "http://"
	httpsSchemePrefix    = "https://"
	sshSchemePrefix      = "ssh://"
	schemeSeparator      = "://"
	gitFormatConstant    = "Git"
	inlineKeyMarker      = "-----BEGIN"

	fieldURL            = "url"
	fieldRebuild        = "rebuild"
	fieldKind           = "kind"
	fieldWatch          = "watch"
	fieldFormat         = "format"
	fieldAuthentication = "authentication"
	fieldInsecure       = "insecure"
	fieldHeaders        = "headers"
	fieldFingerprints   = "fingerprints"
	fieldPath           = "path"
	fieldBranch         = "branch"
	fieldRev            = "rev"
	fieldTag            = "tag"
	fieldPull           = "pull"
	fieldMode           = "mode"
	fieldUsername       = "username"
	fieldPassword       = "password"
	fieldToken          = "token"
	fieldKey            = "key"
	fieldPassphrase     = "passphrase"
	fieldPattern        = "pattern"
	fieldExclude        = "exclude"
	fieldRoot           = "root"
	fieldBehavior       = "behavior"

	expectedNonEmptyString    = "a non-empty string"
	expectedObjectOrString    = "a string or an object with a url"
	expectedSchemes           = "std:<name>, file://<path>, http(s)://<repository> or ssh://<repository>"
	expectedStandardNames     = "std:noop, std:commands or std:exec"
	expectedRebuildPolicies   = "Always or OnChanges"
	expectedKinds             = "Rust or Node"
	expectedBehaviors         = "Mixed, Timestamps or Hash"
	expectedHTTPURL           = "^https?://.+$"
	expectedSSHURL            = "^ssh://.+$"
	expectedFileURL           = "^file://.+$"
	expectedFingerprint       = "^(MD5|SHA1|SHA256):.+$"
	expectedHTTPModes         = "Basic, Digest or Bearer"
	expectedRelativePath      = "a relative path inside the repository"
	expectedSSHAuthentication = "exactly one of password or key"
	expectedGlob              = "a valid glob pattern"
	expectedProjectRoot       = "a resolvable project root"

	ignoredPinsMessage = "ignoring lower-precedence pins"
	urlLogField        = "url"
	effectivePinField  = "effective_pin"
	ignoredPinsField   = "ignored_pins"
)

var (
	httpURLPattern     = regexp.MustCompile(`^https?://.+$`)
	sshURLPattern      = regexp.MustCompile(`^ssh://.+$`)
	fingerprintPattern = regexp.MustCompile(`^(MD5|SHA1|SHA256):.+$`)

	standardObjectFields = []string{fieldURL}
	localObjectFields    = []string{fieldURL, fieldRebuild, fieldKind, fieldWatch}
	gitOptionFields      = []string{fieldPath, fieldBranch, fieldRev, fieldTag, fieldKind, fieldPull}
	httpObjectFields     = append([]string{fieldURL, fieldFormat, fieldAuthentication, fieldInsecure, fieldHeaders}, gitOptionFields...)
	sshObjectFields      = append([]string{fieldURL, fieldAuthentication, fieldInsecure, fieldFingerprints}, gitOptionFields...)
	matcherObjectFields  = []string{fieldPattern, fieldExclude, fieldRoot, fieldBehavior}
)

type rawLocal struct {
	URL     string  `mapstructure:"url"`
	Rebuild *string `mapstructure:"rebuild"`
	Kind    *string `mapstructure:"kind"`
	Watch   []any   `mapstructure:"watch"`
}

type rawGitOptions struct {
	Path   *string `mapstructure:"path"`
	Branch *string `mapstructure:"branch"`
	Rev    *string `mapstructure:"rev"`
	Tag    *string `mapstructure:"tag"`
	Kind   *string `mapstructure:"kind"`
	Pull   *bool   `mapstructure:"pull"`
}

type rawGitHTTP struct {
	URL            string         `mapstructure:"url"`
	Format         *string        `mapstructure:"format"`
	Authentication any            `mapstructure:"authentication"`
	Insecure       *bool          `mapstructure:"insecure"`
	Headers        map[string]any `mapstructure:"headers"`
	Options        rawGitOptions  `mapstructure:",squash"`
}

type rawGitSSH struct {
	URL            string        `mapstructure:"url"`
	Authentication any           `mapstructure:"authentication"`
	Insecure       *bool         `mapstructure:"insecure"`
	Fingerprints   []string      `mapstructure:"fingerprints"`
	Options        rawGitOptions `mapstructure:",squash"`
}

type rawMatcher struct {
	Pattern  *string  `mapstructure:"pattern"`
	Exclude  []string `mapstructure:"exclude"`
	Root     *string  `mapstructure:"root"`
	Behavior *string  `mapstructure:"behavior"`
}

type rawCredentials struct {
	Mode       *string `mapstructure:"mode"`
	Username   *string `mapstructure:"username"`
	Password   *string `mapstructure:"password"`
	Token      *string `mapstructure:"token"`
	Key        *string `mapstructure:"key"`
	Passphrase *string `mapstructure:"passphrase"`
}

// Parser turns raw configuration values into validated descriptors.
type Parser struct {
	logger *zap.Logger
}

// NewParser constructs a Parser. A nil logger disables logging.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse validates a descriptor value using a logger-less parser.
func Parse(value any, projectRoot string) (Descriptor, error) {
	return NewParser(nil).Parse(value, projectRoot)
}

// Parse classifies value as one descriptor variant, applies defaults and resolves relative paths
// against projectRoot. Once a url scheme selects a variant, failures are reported for that variant only.
// A relative projectRoot is made absolute against the working directory first.
func (parser *Parser) Parse(value any, projectRoot string) (Descriptor, error) {
	if len(projectRoot) > 0 && !filepath.IsAbs(projectRoot) {
		absoluteRoot, absoluteError := filepath.Abs(projectRoot)
		if absoluteError != nil {
			return nil, newValidationError("", expectedProjectRoot, "cannot resolve project root %q: %v", projectRoot, absoluteError)
		}
		projectRoot = absoluteRoot
	}
	switch typed := value.(type) {
	case string:
		return parser.parseString(typed, projectRoot)
	case map[string]any:
		return parser.parseObject(typed, projectRoot)
	default:
		return nil, newValidationError("", expectedObjectOrString, "unsupported value of type %T", value)
	}
}

func (parser *Parser) parseString(value string, projectRoot string) (Descriptor, error) {
	if len(strings.TrimSpace(value)) == 0 {
		return nil, newValidationError("", expectedNonEmptyString, "descriptor is empty")
	}
	switch {
	case strings.HasPrefix(value, standardSchemePrefix):
		return parseStandard(value)
	case hasKnownScheme(value):
		return parser.parseObject(map[string]any{fieldURL: value}, projectRoot)
	case strings.Contains(value, schemeSeparator):
		return nil, newValidationError(fieldURL, expectedSchemes, "unsupported url scheme in %q", value)
	default:
		return parser.parseLocal(map[string]any{fieldURL: fileSchemePrefix + value}, projectRoot)
	}
}

func (parser *Parser) parseObject(object map[string]any, projectRoot string) (Descriptor, error) {
	rawURL, present := object[fieldURL]
	if !present {
		return nil, newValidationError(fieldURL, expectedSchemes, "required field is missing")
	}
	url, isString := rawURL.(string)
	if !isString || len(url) == 0 {
		return nil, newValidationError(fieldURL, expectedSchemes, "must be a non-empty string")
	}

	switch {
	case strings.HasPrefix(url, standardSchemePrefix):
		if unknownError := rejectUnknownFields(object, standardObjectFields, ""); unknownError != nil {
			return nil, unknownError
		}
		return parseStandard(url)
	case strings.HasPrefix(url, fileSchemePrefix):
		return parser.parseLocal(object, projectRoot)
	case strings.HasPrefix(url, httpSchemePrefix), strings.HasPrefix(url, httpsSchemePrefix):
		return parser.parseGitHTTP(object, projectRoot)
	case strings.HasPrefix(url, sshSchemePrefix):
		return parser.parseGitSSH(object, projectRoot)
	default:
		return nil, newValidationError(fieldURL, expectedSchemes, "unsupported url scheme in %q", url)
	}
}

func parseStandard(url string) (Descriptor, error) {
	name := StandardName(strings.TrimPrefix(url, standardSchemePrefix))
	switch name {
	case StandardNoop, StandardCommands, StandardExec:
		return StandardDescriptor{Name: name}, nil
	default:
		return nil, newValidationError(fieldURL, expectedStandardNames, "unknown standard executor %q", url)
	}
}

func (parser *Parser) parseLocal(object map[string]any, projectRoot string) (Descriptor, error) {
	if unknownError := rejectUnknownFields(object, localObjectFields, ""); unknownError != nil {
		return nil, unknownError
	}
	var raw rawLocal
	if decodeError := decodeStrict(object, &raw, ""); decodeError != nil {
		return nil, decodeError
	}

	location := strings.TrimPrefix(raw.URL, fileSchemePrefix)
	if len(location) == 0 {
		return nil, newValidationError(fieldURL, expectedFileURL, "file url has no path")
	}
	resolvedPath := resolvePath(location, projectRoot)

	rebuild := RebuildOnChanges
	if raw.Rebuild != nil {
		switch RebuildPolicy(*raw.Rebuild) {
		case RebuildOnChanges, RebuildAlways:
			rebuild = RebuildPolicy(*raw.Rebuild)
		default:
			return nil, newValidationError(fieldRebuild, expectedRebuildPolicies, "unknown rebuild policy %q", *raw.Rebuild)
		}
	}

	kind, kindError := parseKind(raw.Kind)
	if kindError != nil {
		return nil, kindError
	}

	watch := make([]matcher.Matcher, 0, len(raw.Watch))
	for index, entry := range raw.Watch {
		parsedMatcher, matcherError := parseMatcher(entry, projectRoot, fmt.Sprintf("%s[%d]", fieldWatch, index))
		if matcherError != nil {
			return nil, matcherError
		}
		watch = append(watch, parsedMatcher)
	}

	return LocalDescriptor{
		URL:     fileSchemePrefix + resolvedPath,
		Path:    resolvedPath,
		Rebuild: rebuild,
		Kind:    kind,
		Watch:   watch,
	}, nil
}

func (parser *Parser) parseGitHTTP(object map[string]any, projectRoot string) (Descriptor, error) {
	if unknownError := rejectUnknownFields(object, httpObjectFields, ""); unknownError != nil {
		return nil, unknownError
	}
	var raw rawGitHTTP
	if decodeError := decodeStrict(object, &raw, ""); decodeError != nil {
		return nil, decodeError
	}
	if !httpURLPattern.MatchString(raw.URL) {
		return nil, newValidationError(fieldURL, expectedHTTPURL, "malformed http url %q", raw.URL)
	}
	if raw.Format != nil && *raw.Format != gitFormatConstant {
		return nil, newValidationError(fieldFormat, gitFormatConstant, "unsupported format %q", *raw.Format)
	}

	options, optionsError := parseGitOptions(raw.Options)
	if optionsError != nil {
		return nil, optionsError
	}

	var authentication *HTTPAuthentication
	if raw.Authentication != nil {
		parsedAuthentication, authenticationError := parseHTTPAuthentication(raw.Authentication)
		if authenticationError != nil {
			return nil, authenticationError
		}
		authentication = &parsedAuthentication
	}

	headers := make(map[string]string, len(raw.Headers))
	for name, value := range raw.Headers {
		headerField := fieldHeaders + "." + name
		if len(strings.TrimSpace(name)) == 0 {
			return nil, newValidationError(fieldHeaders, expectedNonEmptyString, "header name is empty")
		}
		headerValue, isString := value.(string)
		if !isString || len(headerValue) == 0 {
			return nil, newValidationError(headerField, expectedNonEmptyString, "header value must be a non-empty string")
		}
		headers[name] = headerValue
	}

	descriptor := GitHTTPDescriptor{
		URL:            raw.URL,
		Authentication: authentication,
		Insecure:       boolOrDefault(raw.Insecure),
		Headers:        headers,
		GitOptions:     options,
	}
	parser.logIgnoredPins(descriptor.URL, options)
	return descriptor, nil
}

func (parser *Parser) parseGitSSH(object map[string]any, projectRoot string) (Descriptor, error) {
	if unknownError := rejectUnknownFields(object, sshObjectFields, ""); unknownError != nil {
		return nil, unknownError
	}
	var raw rawGitSSH
	if decodeError := decodeStrict(object, &raw, ""); decodeError != nil {
		return nil, decodeError
	}
	if !sshURLPattern.MatchString(raw.URL) {
		return nil, newValidationError(fieldURL, expectedSSHURL, "malformed ssh url %q", raw.URL)
	}

	options, optionsError := parseGitOptions(raw.Options)
	if optionsError != nil {
		return nil, optionsError
	}

	var authentication *SSHAuthentication
	if raw.Authentication != nil {
		parsedAuthentication, authenticationError := parseSSHAuthentication(raw.Authentication, projectRoot)
		if authenticationError != nil {
			return nil, authenticationError
		}
		authentication = &parsedAuthentication
	}

	fingerprints := make([]string, 0, len(raw.Fingerprints))
	for index, fingerprint := range raw.Fingerprints {
		if !fingerprintPattern.MatchString(fingerprint) {
			return nil, newValidationError(fmt.Sprintf("%s[%d]", fieldFingerprints, index), expectedFingerprint, "malformed fingerprint %q", fingerprint)
		}
		fingerprints = append(fingerprints, fingerprint)
	}

	descriptor := GitSSHDescriptor{
		URL:            raw.URL,
		Authentication: authentication,
		Insecure:       boolOrDefault(raw.Insecure),
		Fingerprints:   fingerprints,
		GitOptions:     options,
	}
	parser.logIgnoredPins(descriptor.URL, options)
	return descriptor, nil
}

func parseGitOptions(raw rawGitOptions) (GitOptions, error) {
	options := GitOptions{Pull: boolOrDefault(raw.Pull)}

	stringFields := []struct {
		name   string
		value  *string
		target *string
	}{
		{name: fieldPath, value: raw.Path, target: &options.Path},
		{name: fieldBranch, value: raw.Branch, target: &options.Branch},
		{name: fieldRev, value: raw.Rev, target: &options.Rev},
		{name: fieldTag, value: raw.Tag, target: &options.Tag},
	}
	for _, stringField := range stringFields {
		value, valueError := optionalString(stringField.name, stringField.value)
		if valueError != nil {
			return GitOptions{}, valueError
		}
		*stringField.target = value
	}

	if len(options.Path) > 0 {
		cleanedPath := filepath.Clean(filepath.FromSlash(options.Path))
		if !filepath.IsLocal(cleanedPath) {
			return GitOptions{}, newValidationError(fieldPath, expectedRelativePath, "path %q escapes the repository", options.Path)
		}
		options.Path = filepath.ToSlash(cleanedPath)
	}

	kind, kindError := parseKind(raw.Kind)
	if kindError != nil {
		return GitOptions{}, kindError
	}
	options.Kind = kind
	return options, nil
}

func parseHTTPAuthentication(value any) (HTTPAuthentication, error) {
	object, isObject := value.(map[string]any)
	if !isObject {
		return HTTPAuthentication{}, newValidationError(fieldAuthentication, "an object", "unsupported value of type %T", value)
	}

	if _, hasMode := object[fieldMode]; !hasMode {
		if unknownError := rejectUnknownFields(object, []string{fieldUsername, fieldPassword}, fieldAuthentication); unknownError != nil {
			return HTTPAuthentication{}, unknownError
		}
		var raw rawCredentials
		if decodeError := decodeStrict(object, &raw, fieldAuthentication); decodeError != nil {
			return HTTPAuthentication{}, decodeError
		}
		username, password, credentialsError := requiredUsernameAndPassword(raw)
		if credentialsError != nil {
			return HTTPAuthentication{}, credentialsError
		}
		return HTTPAuthentication{Mode: HTTPAuthenticationBasic, Username: username, Password: password}, nil
	}

	var raw rawCredentials
	modeValue, isString := object[fieldMode].(string)
	if !isString {
		return HTTPAuthentication{}, newValidationError(fieldAuthentication+"."+fieldMode, expectedHTTPModes, "mode must be a string")
	}

	switch HTTPAuthenticationMode(modeValue) {
	case HTTPAuthenticationBasic, HTTPAuthenticationDigest:
		if unknownError := rejectUnknownFields(object, []string{fieldMode, fieldUsername, fieldPassword}, fieldAuthentication); unknownError != nil {
			return HTTPAuthentication{}, unknownError
		}
		if decodeError := decodeStrict(object, &raw, fieldAuthentication); decodeError != nil {
			return HTTPAuthentication{}, decodeError
		}
		username, password, credentialsError := requiredUsernameAndPassword(raw)
		if credentialsError != nil {
			return HTTPAuthentication{}, credentialsError
		}
		return HTTPAuthentication{Mode: HTTPAuthenticationMode(modeValue), Username: username, Password: password}, nil
	case HTTPAuthenticationBearer:
		if unknownError := rejectUnknownFields(object, []string{fieldMode, fieldToken}, fieldAuthentication); unknownError != nil {
			return HTTPAuthentication{}, unknownError
		}
		if decodeError := decodeStrict(object, &raw, fieldAuthentication); decodeError != nil {
			return HTTPAuthentication{}, decodeError
		}
		token, tokenError := requiredString(fieldAuthentication+"."+fieldToken, raw.Token)
		if tokenError != nil {
			return HTTPAuthentication{}, tokenError
		}
		return HTTPAuthentication{Mode: HTTPAuthenticationBearer, Token: token}, nil
	default:
		return HTTPAuthentication{}, newValidationError(fieldAuthentication+"."+fieldMode, expectedHTTPModes, "unknown mode %q", modeValue)
	}
}

func parseSSHAuthentication(value any, projectRoot string) (SSHAuthentication, error) {
	object, isObject := value.(map[string]any)
	if !isObject {
		return SSHAuthentication{}, newValidationError(fieldAuthentication, "an object", "unsupported value of type %T", value)
	}

	_, hasPassword := object[fieldPassword]
	_, hasKey := object[fieldKey]
	switch {
	case hasPassword && hasKey:
		return SSHAuthentication{}, newValidationError(fieldAuthentication, expectedSSHAuthentication, "password and key are mutually exclusive")
	case !hasPassword && !hasKey:
		return SSHAuthentication{}, newValidationError(fieldAuthentication, expectedSSHAuthentication, "neither password nor key is set")
	}

	var raw rawCredentials
	if hasPassword {
		if unknownError := rejectUnknownFields(object, []string{fieldUsername, fieldPassword}, fieldAuthentication); unknownError != nil {
			return SSHAuthentication{}, unknownError
		}
		if decodeError := decodeStrict(object, &raw, fieldAuthentication); decodeError != nil {
			return SSHAuthentication{}, decodeError
		}
		password, passwordError := requiredString(fieldAuthentication+"."+fieldPassword, raw.Password)
		if passwordError != nil {
			return SSHAuthentication{}, passwordError
		}
		username, usernameError := optionalString(fieldAuthentication+"."+fieldUsername, raw.Username)
		if usernameError != nil {
			return SSHAuthentication{}, usernameError
		}
		return SSHAuthentication{Method: SSHAuthenticationPassword, Username: username, Password: password}, nil
	}

	if unknownError := rejectUnknownFields(object, []string{fieldKey, fieldPassphrase, fieldUsername}, fieldAuthentication); unknownError != nil {
		return SSHAuthentication{}, unknownError
	}
	if decodeError := decodeStrict(object, &raw, fieldAuthentication); decodeError != nil {
		return SSHAuthentication{}, decodeError
	}
	key, keyError := requiredString(fieldAuthentication+"."+fieldKey, raw.Key)
	if keyError != nil {
		return SSHAuthentication{}, keyError
	}
	if !IsInlineKey(key) {
		key = resolvePath(key, projectRoot)
	}
	passphrase, passphraseError := optionalString(fieldAuthentication+"."+fieldPassphrase, raw.Passphrase)
	if passphraseError != nil {
		return SSHAuthentication{}, passphraseError
	}
	username, usernameError := optionalString(fieldAuthentication+"."+fieldUsername, raw.Username)
	if usernameError != nil {
		return SSHAuthentication{}, usernameError
	}
	return SSHAuthentication{Method: SSHAuthenticationKey, Username: username, Key: key, Passphrase: passphrase}, nil
}

func parseMatcher(value any, projectRoot string, field string) (matcher.Matcher, error) {
	defaultRoot := ""
	if len(projectRoot) > 0 {
		defaultRoot = filepath.Clean(projectRoot)
	}

	switch typed := value.(type) {
	case string:
		if len(typed) == 0 {
			return matcher.Matcher{}, newValidationError(field, expectedNonEmptyString, "pattern is empty")
		}
		if !doublestar.ValidatePattern(typed) {
			return matcher.Matcher{}, newValidationError(field, expectedGlob, "malformed pattern %q", typed)
		}
		return matcher.Matcher{Pattern: typed, Exclude: []string{}, Root: defaultRoot, Behavior: matcher.BehaviorMixed}, nil
	case map[string]any:
		if unknownError := rejectUnknownFields(typed, matcherObjectFields, field); unknownError != nil {
			return matcher.Matcher{}, unknownError
		}
		var raw rawMatcher
		if decodeError := decodeStrict(typed, &raw, field); decodeError != nil {
			return matcher.Matcher{}, decodeError
		}
		pattern, patternError := requiredString(field+"."+fieldPattern, raw.Pattern)
		if patternError != nil {
			return matcher.Matcher{}, patternError
		}
		if !doublestar.ValidatePattern(pattern) {
			return matcher.Matcher{}, newValidationError(field+"."+fieldPattern, expectedGlob, "malformed pattern %q", pattern)
		}

		excludes := make([]string, 0, len(raw.Exclude))
		for index, exclude := range raw.Exclude {
			excludeField := fmt.Sprintf("%s.%s[%d]", field, fieldExclude, index)
			if len(exclude) == 0 {
				return matcher.Matcher{}, newValidationError(excludeField, expectedNonEmptyString, "pattern is empty")
			}
			if !doublestar.ValidatePattern(exclude) {
				return matcher.Matcher{}, newValidationError(excludeField, expectedGlob, "malformed pattern %q", exclude)
			}
			excludes = append(excludes, exclude)
		}

		root := defaultRoot
		if raw.Root != nil {
			configuredRoot, rootError := requiredString(field+"."+fieldRoot, raw.Root)
			if rootError != nil {
				return matcher.Matcher{}, rootError
			}
			root = resolvePath(configuredRoot, projectRoot)
		}

		behavior := matcher.BehaviorMixed
		if raw.Behavior != nil {
			parsedBehavior, supported := matcher.ParseBehavior(*raw.Behavior)
			if !supported {
				return matcher.Matcher{}, newValidationError(field+"."+fieldBehavior, expectedBehaviors, "unknown behavior %q", *raw.Behavior)
			}
			behavior = parsedBehavior
		}

		return matcher.Matcher{Pattern: pattern, Exclude: excludes, Root: root, Behavior: behavior}, nil
	default:
		return matcher.Matcher{}, newValidationError(field, "a glob string or a matcher object", "unsupported value of type %T", value)
	}
}

func parseKind(value *string) (Kind, error) {
	if value == nil {
		return KindNone, nil
	}
	switch Kind(*value) {
	case KindRust, KindNode:
		return Kind(*value), nil
	default:
		return KindNone, newValidationError(fieldKind, expectedKinds, "unknown kind %q", *value)
	}
}

func (parser *Parser) logIgnoredPins(url string, options GitOptions) {
	ignored := options.IgnoredPins()
	if len(ignored) == 0 {
		return
	}
	ignoredNames := make([]string, 0, len(ignored))
	for _, pinType := range ignored {
		ignoredNames = append(ignoredNames, string(pinType))
	}
	parser.logger.Debug(
		ignoredPinsMessage,
		zap.String(urlLogField, url),
		zap.String(effectivePinField, string(options.Pin().Type)),
		zap.Strings(ignoredPinsField, ignoredNames),
	)
}

// IsInlineKey reports whether an SSH key value holds PEM material rather than a path.
func IsInlineKey(key string) bool {
	return strings.HasPrefix(strings.TrimSpace(key), inlineKeyMarker)
}

func hasKnownScheme(value string) bool {
	for _, prefix := range []string{fileSchemePrefix, httpSchemePrefix, httpsSchemePrefix, sshSchemePrefix} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func rejectUnknownFields(object map[string]any, allowed []string, parentField string) error {
	unknown := make([]string, 0)
	for key := range object {
		known := false
		for _, allowedKey := range allowed {
			if key == allowedKey {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	field := unknown[0]
	if len(parentField) > 0 {
		field = parentField + "." + field
	}
	return newValidationError(field, "one of "+strings.Join(allowed, ", "), "unknown field")
}

func decodeStrict(input map[string]any, target any, field string) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      target,
	})
	if decoderError != nil {
		return decoderError
	}
	if decodeError := decoder.Decode(input); decodeError != nil {
		return ValidationError{Field: field, Message: decodeError.Error()}
	}
	return nil
}

func requiredUsernameAndPassword(raw rawCredentials) (string, string, error) {
	username, usernameError := requiredString(fieldAuthentication+"."+fieldUsername, raw.Username)
	if usernameError != nil {
		return "", "", usernameError
	}
	password, passwordError := requiredString(fieldAuthentication+"."+fieldPassword, raw.Password)
	if passwordError != nil {
		return "", "", passwordError
	}
	return username, password, nil
}

func requiredString(field string, value *string) (string, error) {
	if value == nil {
		return "", newValidationError(field, expectedNonEmptyString, "required field is missing")
	}
	return optionalString(field, value)
}

func optionalString(field string, value *string) (string, error) {
	if value == nil {
		return "", nil
	}
	if len(*value) == 0 {
		return "", newValidationError(field, expectedNonEmptyString, "value is empty")
	}
	return *value, nil
}

func boolOrDefault(value *bool) bool {
	if value == nil {
		return false
	}
	return *value
}

func resolvePath(path string, projectRoot string) string {
	if filepath.IsAbs(path) || len(projectRoot) == 0 {
		return filepath.Clean(path)
	}
	return filepath.Join(projectRoot, path)
}
