package credentials

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tyemirov/exres/internal/descriptor"
	exerrors "github.com/tyemirov/exres/internal/errors"
)

const (
	// SSHSecretVariable holds the password or passphrase printed by the askpass helper.
	SSHSecretVariable = "EXRES_SSH_SECRET"

	gitSSHCommandVariable       = "GIT_SSH_COMMAND"
	sshAskPassVariable          = "SSH_ASKPASS"
	sshAskPassRequireVariable   = "SSH_ASKPASS_REQUIRE"
	sshAskPassRequireForce      = "force"
	sshExecutable               = "ssh"
	sshOptionFlag               = "-o"
	sshIdentityFlag             = "-i"
	defaultSSHUsername          = "git"
	defaultSSHPort              = "22"
	nullDevicePath              = "/dev/null"
	askPassFileName             = "askpass.sh"
	identityFileName            = "identity"
	knownHostsFileName          = "known_hosts"
	askPassScript               = "#!/bin/sh\nprintf '%s\\n' \"$" + SSHSecretVariable + "\"\n"
	scratchDirectoryPermissions = 0o700
	secretFilePermissions       = 0o600
	executableFilePermissions   = 0o700

	hostKeyModeAllowList = "allow_list"
	hostKeyModeInsecure  = "insecure"
	hostKeyModeKnown     = "known_hosts"

	sshCredentialsResolvedMessage = "resolved ssh credentials"
	urlFieldName                  = "url"
	methodFieldName               = "method"
	hostKeyModeFieldName          = "host_key_mode"
	usernameFieldName             = "username"
	noAuthenticationMethod        = "none"

	invalidSSHURLTemplate          = "invalid ssh url: %w"
	readKeyTemplate                = "unable to read ssh key %s: %w"
	parseKeyTemplate               = "unable to parse ssh key: %w"
	passphraseRequiredMessage      = "ssh key is encrypted and no passphrase was provided"
	hostKeyRejectedTemplate        = "host key %s presented by %s matches no allowed fingerprint"
	writeCredentialFileTemplate    = "unable to write credential file %s: %w"
	createScratchDirectoryTemplate = "unable to create credential directory %s: %w"
)

// SSHResolver builds git environments for SSH descriptors.
type SSHResolver struct {
	logger *zap.Logger
	prober HostKeyProber
}

// NewSSHResolver constructs an SSHResolver. A nil prober uses SSHHostKeyProber defaults.
func NewSSHResolver(logger *zap.Logger, prober HostKeyProber) *SSHResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prober == nil {
		prober = NewSSHHostKeyProber(0)
	}
	return &SSHResolver{logger: logger, prober: prober}
}

// Resolve validates key material, enforces the fingerprint allow-list and returns the environment
// git needs to reach the repository. Credential files are written under scratchDirectory.
func (resolver *SSHResolver) Resolve(executionContext context.Context, gitSSH descriptor.GitSSHDescriptor, scratchDirectory string) (GitEnvironment, error) {
	subject := RedactURL(gitSSH.URL)
	remote, parseError := url.Parse(gitSSH.URL)
	if parseError != nil {
		return GitEnvironment{}, exerrors.Wrap(exerrors.OperationCredentialsResolve, subject, exerrors.ErrValidation, fmt.Errorf(invalidSSHURLTemplate, parseError))
	}

	username := defaultSSHUsername
	if remote.User != nil && len(remote.User.Username()) > 0 {
		username = remote.User.Username()
	}
	if gitSSH.Authentication != nil && len(gitSSH.Authentication.Username) > 0 {
		username = gitSSH.Authentication.Username
	}
	remote.User = url.User(username)

	port := remote.Port()
	if len(port) == 0 {
		port = defaultSSHPort
	}
	address := net.JoinHostPort(remote.Hostname(), port)

	if mkdirError := os.MkdirAll(scratchDirectory, scratchDirectoryPermissions); mkdirError != nil {
		return GitEnvironment{}, exerrors.Wrap(exerrors.OperationCredentialsResolve, subject, "", fmt.Errorf(createScratchDirectoryTemplate, scratchDirectory, mkdirError))
	}

	environment := GitEnvironment{
		RemoteURL: remote.String(),
		Variables: map[string]string{gitTerminalPromptVariable: gitTerminalPromptDisabled},
	}
	command := []string{sshExecutable}

	method := noAuthenticationMethod
	authenticationOptions, authenticationError := resolver.authenticationOptions(gitSSH.Authentication, scratchDirectory, &environment)
	if authenticationError != nil {
		_ = environment.Cleanup()
		return GitEnvironment{}, exerrors.Wrap(exerrors.OperationCredentialsResolve, subject, exerrors.ErrAuthentication, authenticationError)
	}
	command = append(command, authenticationOptions...)
	if gitSSH.Authentication != nil {
		method = string(gitSSH.Authentication.Method)
	}

	hostKeyMode := hostKeyModeKnown
	switch {
	case len(gitSSH.Fingerprints) > 0:
		hostKeyMode = hostKeyModeAllowList
		knownHostsPath, verifyError := resolver.verifyHostKey(executionContext, address, gitSSH.Fingerprints, scratchDirectory, subject, &environment)
		if verifyError != nil {
			_ = environment.Cleanup()
			return GitEnvironment{}, verifyError
		}
		command = append(command,
			sshOptionFlag, "StrictHostKeyChecking=yes",
			sshOptionFlag, "UserKnownHostsFile="+knownHostsPath,
			sshOptionFlag, "GlobalKnownHostsFile="+nullDevicePath,
		)
	case gitSSH.Insecure:
		hostKeyMode = hostKeyModeInsecure
		command = append(command,
			sshOptionFlag, "StrictHostKeyChecking=no",
			sshOptionFlag, "UserKnownHostsFile="+nullDevicePath,
		)
	default:
		command = append(command, sshOptionFlag, "StrictHostKeyChecking=yes")
	}

	quoted := make([]string, 0, len(command))
	for _, part := range command {
		quoted = append(quoted, shellQuote(part))
	}
	environment.Variables[gitSSHCommandVariable] = strings.Join(quoted, " ")

	resolver.logger.Debug(
		sshCredentialsResolvedMessage,
		zap.String(urlFieldName, subject),
		zap.String(methodFieldName, method),
		zap.String(usernameFieldName, username),
		zap.String(hostKeyModeFieldName, hostKeyMode),
	)
	return environment, nil
}

func (resolver *SSHResolver) authenticationOptions(authentication *descriptor.SSHAuthentication, scratchDirectory string, environment *GitEnvironment) ([]string, error) {
	if authentication == nil {
		return []string{sshOptionFlag, "BatchMode=yes"}, nil
	}

	if authentication.Method == descriptor.SSHAuthenticationPassword {
		if askPassError := installAskPass(authentication.Password, scratchDirectory, environment); askPassError != nil {
			return nil, askPassError
		}
		return []string{
			sshOptionFlag, "PreferredAuthentications=password,keyboard-interactive",
			sshOptionFlag, "PubkeyAuthentication=no",
			sshOptionFlag, "NumberOfPasswordPrompts=1",
		}, nil
	}

	keyMaterial, keyPath, loadError := loadKey(authentication.Key)
	if loadError != nil {
		return nil, loadError
	}
	if parseError := validateKey(keyMaterial, authentication.Passphrase); parseError != nil {
		return nil, parseError
	}
	if len(keyPath) == 0 {
		keyPath = filepath.Join(scratchDirectory, identityFileName)
		if writeError := writeCredentialFile(keyPath, keyMaterial, secretFilePermissions, environment); writeError != nil {
			return nil, writeError
		}
	}

	options := []string{
		sshIdentityFlag, keyPath,
		sshOptionFlag, "IdentitiesOnly=yes",
		sshOptionFlag, "PreferredAuthentications=publickey",
	}
	if len(authentication.Passphrase) == 0 {
		return append(options, sshOptionFlag, "BatchMode=yes"), nil
	}
	if askPassError := installAskPass(authentication.Passphrase, scratchDirectory, environment); askPassError != nil {
		return nil, askPassError
	}
	return options, nil
}

func (resolver *SSHResolver) verifyHostKey(executionContext context.Context, address string, fingerprints []string, scratchDirectory string, subject string, environment *GitEnvironment) (string, error) {
	presentedKey, probeError := resolver.prober.Probe(executionContext, address)
	if probeError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return "", contextError
		}
		return "", exerrors.Wrap(exerrors.OperationHostKeyVerify, subject, exerrors.ErrNetwork, probeError)
	}
	if !MatchesAnyFingerprint(presentedKey, fingerprints) {
		return "", exerrors.WrapMessage(exerrors.OperationHostKeyVerify, subject, exerrors.ErrAuthentication, fmt.Sprintf(hostKeyRejectedTemplate, ssh.FingerprintSHA256(presentedKey), address))
	}

	knownHostsPath := filepath.Join(scratchDirectory, knownHostsFileName)
	line := knownhosts.Line([]string{knownhosts.Normalize(address)}, presentedKey) + "\n"
	if writeError := writeCredentialFile(knownHostsPath, []byte(line), secretFilePermissions, environment); writeError != nil {
		return "", exerrors.Wrap(exerrors.OperationHostKeyVerify, subject, "", writeError)
	}
	return knownHostsPath, nil
}

func loadKey(key string) ([]byte, string, error) {
	if descriptor.IsInlineKey(key) {
		return []byte(key), "", nil
	}
	material, readError := os.ReadFile(key)
	if readError != nil {
		return nil, "", fmt.Errorf(readKeyTemplate, key, readError)
	}
	return material, key, nil
}

func validateKey(material []byte, passphrase string) error {
	var parseError error
	if len(passphrase) > 0 {
		_, parseError = ssh.ParsePrivateKeyWithPassphrase(material, []byte(passphrase))
	} else {
		_, parseError = ssh.ParsePrivateKey(material)
	}
	if parseError == nil {
		return nil
	}
	var missingPassphrase *ssh.PassphraseMissingError
	if errors.As(parseError, &missingPassphrase) {
		return errors.New(passphraseRequiredMessage)
	}
	return fmt.Errorf(parseKeyTemplate, parseError)
}

func installAskPass(secret string, scratchDirectory string, environment *GitEnvironment) error {
	askPassPath := filepath.Join(scratchDirectory, askPassFileName)
	if writeError := writeCredentialFile(askPassPath, []byte(askPassScript), executableFilePermissions, environment); writeError != nil {
		return writeError
	}
	environment.Variables[sshAskPassVariable] = askPassPath
	environment.Variables[sshAskPassRequireVariable] = sshAskPassRequireForce
	environment.Variables[SSHSecretVariable] = secret
	return nil
}

func writeCredentialFile(path string, content []byte, permissions os.FileMode, environment *GitEnvironment) error {
	if writeError := os.WriteFile(path, content, permissions); writeError != nil {
		return fmt.Errorf(writeCredentialFileTemplate, path, writeError)
	}
	if chmodError := os.Chmod(path, permissions); chmodError != nil {
		return fmt.Errorf(writeCredentialFileTemplate, path, chmodError)
	}
	environment.files = append(environment.files, path)
	return nil
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
