package credentials

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	fingerprintAlgorithmMD5    = "MD5"
	fingerprintAlgorithmSHA1   = "SHA1"
	fingerprintAlgorithmSHA256 = "SHA256"
	fingerprintSeparator       = ":"
	probeUserName              = "exres-probe"
	defaultProbeTimeout        = 10 * time.Second
	probeDialTemplate          = "unable to reach %s: %w"
	probeHandshakeTemplate     = "ssh handshake with %s failed: %w"
	probeNoHostKeyTemplate     = "ssh server %s presented no host key"
)

var errHostKeyCaptured = errors.New("host key captured")

// HostKeyProber retrieves the host key an SSH server presents.
type HostKeyProber interface {
	Probe(executionContext context.Context, address string) (ssh.PublicKey, error)
}

// SSHHostKeyProber performs a partial SSH handshake that stops once the host key is known.
type SSHHostKeyProber struct {
	Timeout time.Duration
}

// NewSSHHostKeyProber constructs a prober. Non-positive timeouts fall back to ten seconds.
func NewSSHHostKeyProber(timeout time.Duration) SSHHostKeyProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return SSHHostKeyProber{Timeout: timeout}
}

// Probe dials address and returns the presented host key without authenticating.
func (prober SSHHostKeyProber) Probe(executionContext context.Context, address string) (ssh.PublicKey, error) {
	dialer := net.Dialer{Timeout: prober.Timeout}
	connection, dialError := dialer.DialContext(executionContext, "tcp", address)
	if dialError != nil {
		return nil, fmt.Errorf(probeDialTemplate, address, dialError)
	}
	defer connection.Close()
	if prober.Timeout > 0 {
		_ = connection.SetDeadline(time.Now().Add(prober.Timeout))
	}

	var presentedKey ssh.PublicKey
	configuration := &ssh.ClientConfig{
		User: probeUserName,
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			presentedKey = key
			return errHostKeyCaptured
		},
		Timeout: prober.Timeout,
	}

	_, _, _, handshakeError := ssh.NewClientConn(connection, address, configuration)
	if presentedKey != nil {
		return presentedKey, nil
	}
	if handshakeError != nil {
		return nil, fmt.Errorf(probeHandshakeTemplate, address, handshakeError)
	}
	return nil, fmt.Errorf(probeNoHostKeyTemplate, address)
}

// MatchesFingerprint reports whether key matches an allow-list entry of the form ALGO:digest.
// Digests are accepted as hex (colons optional, any case) or as base64 with or without padding.
func MatchesFingerprint(key ssh.PublicKey, entry string) bool {
	algorithm, digest, found := strings.Cut(entry, fingerprintSeparator)
	if !found || len(digest) == 0 {
		return false
	}

	marshaled := key.Marshal()
	var sum []byte
	switch algorithm {
	case fingerprintAlgorithmMD5:
		digestBytes := md5.Sum(marshaled)
		sum = digestBytes[:]
	case fingerprintAlgorithmSHA1:
		digestBytes := sha1.Sum(marshaled)
		sum = digestBytes[:]
	case fingerprintAlgorithmSHA256:
		digestBytes := sha256.Sum256(marshaled)
		sum = digestBytes[:]
	default:
		return false
	}

	normalizedHex := strings.ToLower(strings.ReplaceAll(digest, fingerprintSeparator, ""))
	if normalizedHex == hex.EncodeToString(sum) {
		return true
	}
	return digest == base64.RawStdEncoding.EncodeToString(sum) || digest == base64.StdEncoding.EncodeToString(sum)
}

// MatchesAnyFingerprint reports whether key matches at least one allow-list entry.
func MatchesAnyFingerprint(key ssh.PublicKey, entries []string) bool {
	for _, entry := range entries {
		if MatchesFingerprint(key, entry) {
			return true
		}
	}
	return false
}
