// Package cache persists acquired executors under one directory per fingerprint.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/matcher"
)

const (
	// FormatVersion identifies the metadata layout. Records with another version are discarded.
	FormatVersion = 1

	metadataFileName            = "metadata.json"
	repositoryDirectoryName     = "repository"
	scratchDirectoryName        = "scratch"
	temporaryFileSuffix         = ".tmp.*"
	directoryPermissions        = 0o755
	metadataFilePermissions     = 0o644
	fingerprintFieldName        = "fingerprint"
	statusFieldName             = "status"
	reasonFieldName             = "reason"
	cacheRootFieldName          = "cache_root"
	entriesFieldName            = "entries"
	purgeReason                 = "purge"
	entryRemovedMessage         = "removed cache entry"
	entryCommittedMessage       = "committed cache entry"
	cachePurgedMessage          = "purged executor cache"
	rootRequiredMessage         = "cache root directory is required"
	invalidFingerprintTemplate  = "invalid fingerprint %q"
	readMetadataTemplate        = "unable to read metadata: %w"
	decodeMetadataTemplate      = "unable to decode metadata: %w"
	trailingContentMessage      = "metadata has trailing content"
	versionMismatchTemplate     = "metadata format version %d is not %d"
	fingerprintMismatchTemplate = "metadata names fingerprint %s"
	statusNotReadyTemplate      = "entry left in status %q"
	artifactMissingTemplate     = "artifact %s is missing"
	encodeMetadataTemplate      = "unable to encode metadata: %w"
	writeMetadataTemplate       = "unable to write metadata: %w"
	removeEntryTemplate         = "unable to remove cache entry: %w"
	listEntriesTemplate         = "unable to list cache entries: %w"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ErrRootMissing indicates a Store was constructed without a root directory.
var ErrRootMissing = errors.New(rootRequiredMessage)

// Status tracks an entry through acquisition.
type Status string

// Entry statuses.
const (
	StatusAcquiring Status = "acquiring"
	StatusReady     Status = "ready"
)

// Record is the metadata persisted beside each cached artifact.
type Record struct {
	FormatVersion int               `json:"format_version"`
	Fingerprint   string            `json:"fingerprint"`
	Status        Status            `json:"status"`
	Variant       string            `json:"variant"`
	Location      string            `json:"location"`
	ArtifactPath  string            `json:"artifact_path"`
	Kind          string            `json:"kind,omitempty"`
	Revision      string            `json:"revision,omitempty"`
	Signature     matcher.Signature `json:"signature"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	BuiltAt       *time.Time        `json:"built_at,omitempty"`
}

// Entry is one listing result. Problem is set when the metadata cannot be trusted.
type Entry struct {
	Fingerprint string
	Record      Record
	Problem     string
}

// Store manages the cache root. All metadata writes are atomic: write a temporary file, sync,
// rename over the record, then sync the directory.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore constructs a Store rooted at root.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	trimmedRoot := strings.TrimSpace(root)
	if len(trimmedRoot) == 0 {
		return nil, ErrRootMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: filepath.Clean(trimmedRoot), logger: logger, now: time.Now}, nil
}

// Root returns the cache root directory.
func (store *Store) Root() string {
	return store.root
}

// EntryDirectory returns the directory holding everything cached for a fingerprint.
func (store *Store) EntryDirectory(fingerprint string) string {
	return filepath.Join(store.root, fingerprint)
}

// RepositoryDirectory returns where git clones for a fingerprint live.
func (store *Store) RepositoryDirectory(fingerprint string) string {
	return filepath.Join(store.EntryDirectory(fingerprint), repositoryDirectoryName)
}

// ScratchDirectory returns the directory for short-lived credential files.
func (store *Store) ScratchDirectory(fingerprint string) string {
	return filepath.Join(store.EntryDirectory(fingerprint), scratchDirectoryName)
}

// ValidateFingerprint rejects values that are not lowercase hex SHA-256 digests.
func ValidateFingerprint(fingerprint string) error {
	if !fingerprintPattern.MatchString(fingerprint) {
		return fmt.Errorf(invalidFingerprintTemplate, fingerprint)
	}
	return nil
}

// Load returns the Ready record for a fingerprint. found is false when no entry exists. Metadata that
// is unreadable, inconsistent, not Ready, or whose artifact vanished yields a cache_corruption error.
func (store *Store) Load(fingerprint string) (Record, bool, error) {
	if validationError := ValidateFingerprint(fingerprint); validationError != nil {
		return Record{}, false, exerrors.Wrap(exerrors.OperationCacheLoad, fingerprint, exerrors.ErrValidation, validationError)
	}

	metadataPath := filepath.Join(store.EntryDirectory(fingerprint), metadataFileName)
	record, readError := readRecord(metadataPath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			if _, statError := os.Stat(store.EntryDirectory(fingerprint)); errors.Is(statError, os.ErrNotExist) {
				return Record{}, false, nil
			}
		}
		return Record{}, false, exerrors.Wrap(exerrors.OperationCacheLoad, fingerprint, exerrors.ErrCacheCorruption, readError)
	}

	if inconsistency := inspectRecord(fingerprint, record); inconsistency != nil {
		return Record{}, false, exerrors.Wrap(exerrors.OperationCacheLoad, fingerprint, exerrors.ErrCacheCorruption, inconsistency)
	}
	return record, true, nil
}

// Commit atomically persists a record, stamping the format version and timestamps.
func (store *Store) Commit(record Record) (Record, error) {
	if validationError := ValidateFingerprint(record.Fingerprint); validationError != nil {
		return Record{}, exerrors.Wrap(exerrors.OperationCacheCommit, record.Fingerprint, exerrors.ErrValidation, validationError)
	}

	now := store.now().UTC()
	record.FormatVersion = FormatVersion
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Signature.Snapshots == nil {
		record.Signature.Snapshots = []matcher.Snapshot{}
	}

	encoded, encodeError := json.MarshalIndent(record, "", "  ")
	if encodeError != nil {
		return Record{}, exerrors.Wrap(exerrors.OperationCacheCommit, record.Fingerprint, "", fmt.Errorf(encodeMetadataTemplate, encodeError))
	}
	encoded = append(encoded, '\n')

	entryDirectory := store.EntryDirectory(record.Fingerprint)
	if writeError := ensureDirectoryDurable(entryDirectory); writeError != nil {
		return Record{}, exerrors.Wrap(exerrors.OperationCacheCommit, record.Fingerprint, "", fmt.Errorf(writeMetadataTemplate, writeError))
	}
	if writeError := writeFileAtomic(filepath.Join(entryDirectory, metadataFileName), encoded, metadataFilePermissions); writeError != nil {
		return Record{}, exerrors.Wrap(exerrors.OperationCacheCommit, record.Fingerprint, "", fmt.Errorf(writeMetadataTemplate, writeError))
	}

	store.logger.Debug(entryCommittedMessage,
		zap.String(fingerprintFieldName, record.Fingerprint),
		zap.String(statusFieldName, string(record.Status)),
	)
	return record, nil
}

// Remove deletes the entry subtree for a fingerprint. Removing an absent entry is not an error.
func (store *Store) Remove(fingerprint string, reason string) error {
	if validationError := ValidateFingerprint(fingerprint); validationError != nil {
		return exerrors.Wrap(exerrors.OperationCacheCommit, fingerprint, exerrors.ErrValidation, validationError)
	}
	if removeError := os.RemoveAll(store.EntryDirectory(fingerprint)); removeError != nil {
		return exerrors.Wrap(exerrors.OperationCacheCommit, fingerprint, "", fmt.Errorf(removeEntryTemplate, removeError))
	}
	store.logger.Debug(entryRemovedMessage,
		zap.String(fingerprintFieldName, fingerprint),
		zap.String(reasonFieldName, reason),
	)
	return nil
}

// List returns every entry under the root in fingerprint order. Untrusted entries carry a Problem.
func (store *Store) List() ([]Entry, error) {
	directoryEntries, readError := os.ReadDir(store.root)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf(listEntriesTemplate, readError)
	}

	entries := make([]Entry, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() || ValidateFingerprint(directoryEntry.Name()) != nil {
			continue
		}
		fingerprint := directoryEntry.Name()
		record, _, loadError := store.Load(fingerprint)
		entry := Entry{Fingerprint: fingerprint, Record: record}
		if loadError != nil {
			entry.Problem = loadError.Error()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(left int, right int) bool {
		return entries[left].Fingerprint < entries[right].Fingerprint
	})
	return entries, nil
}

// Purge removes every fingerprint entry and returns the removed fingerprints.
func (store *Store) Purge() ([]string, error) {
	entries, listError := store.List()
	if listError != nil {
		return nil, listError
	}
	removed := make([]string, 0, len(entries))
	for _, entry := range entries {
		if removeError := store.Remove(entry.Fingerprint, purgeReason); removeError != nil {
			return removed, removeError
		}
		removed = append(removed, entry.Fingerprint)
	}
	store.logger.Info(cachePurgedMessage, zap.String(cacheRootFieldName, store.root), zap.Int(entriesFieldName, len(removed)))
	return removed, nil
}

func readRecord(metadataPath string) (Record, error) {
	file, openError := os.Open(metadataPath)
	if openError != nil {
		return Record{}, fmt.Errorf(readMetadataTemplate, openError)
	}
	defer file.Close()

	var record Record
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if decodeError := decoder.Decode(&record); decodeError != nil {
		return Record{}, fmt.Errorf(decodeMetadataTemplate, decodeError)
	}
	if trailingError := decoder.Decode(&struct{}{}); !errors.Is(trailingError, io.EOF) {
		return Record{}, errors.New(trailingContentMessage)
	}
	return record, nil
}

func inspectRecord(fingerprint string, record Record) error {
	switch {
	case record.FormatVersion != FormatVersion:
		return fmt.Errorf(versionMismatchTemplate, record.FormatVersion, FormatVersion)
	case record.Fingerprint != fingerprint:
		return fmt.Errorf(fingerprintMismatchTemplate, record.Fingerprint)
	case record.Status != StatusReady:
		return fmt.Errorf(statusNotReadyTemplate, record.Status)
	}
	if len(record.ArtifactPath) > 0 {
		if _, statError := os.Stat(record.ArtifactPath); statError != nil {
			return fmt.Errorf(artifactMissingTemplate, record.ArtifactPath)
		}
	}
	return nil
}

func ensureDirectoryDurable(directory string) error {
	if mkdirError := os.MkdirAll(directory, directoryPermissions); mkdirError != nil {
		return mkdirError
	}
	if syncError := syncDirectory(directory); syncError != nil {
		return syncError
	}
	parent := filepath.Dir(directory)
	if parent == directory {
		return nil
	}
	return syncDirectory(parent)
}

func writeFileAtomic(path string, content []byte, permissions os.FileMode) error {
	directory := filepath.Dir(path)
	temporaryFile, createError := os.CreateTemp(directory, filepath.Base(path)+temporaryFileSuffix)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()
	committed := false
	defer func() {
		_ = temporaryFile.Close()
		if !committed {
			_ = os.Remove(temporaryPath)
		}
	}()

	if _, copyError := io.Copy(temporaryFile, bytes.NewReader(content)); copyError != nil {
		return copyError
	}
	if chmodError := temporaryFile.Chmod(permissions); chmodError != nil {
		return chmodError
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		return syncError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return closeError
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		return renameError
	}
	committed = true
	return syncDirectory(directory)
}

func syncDirectory(directory string) error {
	handle, openError := os.Open(directory)
	if openError != nil {
		return openError
	}
	defer handle.Close()
	return handle.Sync()
}
