package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const (
	currentDirectoryPrefixConstant    = "./"
	matchFilesErrorTemplateConstant   = "unable to match %q under %s: %w"
	statFileErrorTemplateConstant     = "unable to inspect %s: %w"
	hashFileErrorTemplateConstant     = "unable to hash %s: %w"
	evaluationMessageConstant         = "evaluated file matchers"
	matcherCountFieldNameConstant     = "matchers"
	matchedFileCountFieldNameConstant = "files"
	changeCountFieldNameConstant      = "changes"
)

// FileState records what a matcher observed about one file. Timestamps behavior fills only
// ModifiedUnixNano, Hash behavior only Hash, and Mixed both.
type FileState struct {
	ModifiedUnixNano int64  `json:"modified_unix_nano,omitempty"`
	Hash             string `json:"hash,omitempty"`
}

// Snapshot maps slash-separated paths relative to a matcher root to their observed state.
type Snapshot map[string]FileState

// Signature holds one snapshot per matcher, in declaration order.
type Signature struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// ChangeKind classifies a detected change.
type ChangeKind string

// Change kinds.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change describes one file whose state differs from the previous signature.
type Change struct {
	Matcher int
	Path    string
	Kind    ChangeKind
}

// Engine evaluates matchers against the filesystem.
type Engine struct {
	logger *zap.Logger
}

// NewEngine constructs an Engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Evaluate computes the current signature of matchers and the changes relative to previous.
// A zero previous signature reports every matched file as added. No matchers never change.
func (engine *Engine) Evaluate(executionContext context.Context, matchers []Matcher, previous Signature) (Signature, []Change, error) {
	current := Signature{Snapshots: make([]Snapshot, 0, len(matchers))}
	changes := make([]Change, 0)
	matchedFileCount := 0

	for matcherIndex, watched := range matchers {
		var previousSnapshot Snapshot
		if len(previous.Snapshots) == len(matchers) {
			previousSnapshot = previous.Snapshots[matcherIndex]
		}

		snapshot, snapshotError := engine.snapshot(executionContext, watched, previousSnapshot)
		if snapshotError != nil {
			return Signature{}, nil, snapshotError
		}
		current.Snapshots = append(current.Snapshots, snapshot)
		matchedFileCount += len(snapshot)
		changes = append(changes, compareSnapshots(matcherIndex, watched.Behavior, previousSnapshot, snapshot)...)
	}

	engine.logger.Debug(
		evaluationMessageConstant,
		zap.Int(matcherCountFieldNameConstant, len(matchers)),
		zap.Int(matchedFileCountFieldNameConstant, matchedFileCount),
		zap.Int(changeCountFieldNameConstant, len(changes)),
	)
	return current, changes, nil
}

func (engine *Engine) snapshot(executionContext context.Context, watched Matcher, previous Snapshot) (Snapshot, error) {
	root := watched.Root
	if len(root) == 0 {
		root = "."
	}
	snapshot := Snapshot{}

	rootInfo, rootError := os.Stat(root)
	if errors.Is(rootError, fs.ErrNotExist) {
		return snapshot, nil
	}
	if rootError != nil {
		return nil, fmt.Errorf(statFileErrorTemplateConstant, root, rootError)
	}
	if !rootInfo.IsDir() {
		return snapshot, nil
	}

	pattern := strings.TrimPrefix(watched.Pattern, currentDirectoryPrefixConstant)
	walkError := doublestar.GlobWalk(os.DirFS(root), pattern, func(relativePath string, entry fs.DirEntry) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		if isExcluded(relativePath, watched.Exclude) {
			return nil
		}

		absolutePath := filepath.Join(root, filepath.FromSlash(relativePath))
		fileInfo, statError := os.Stat(absolutePath)
		if statError != nil {
			return fmt.Errorf(statFileErrorTemplateConstant, absolutePath, statError)
		}
		if !fileInfo.Mode().IsRegular() {
			return nil
		}

		state, stateError := observe(absolutePath, fileInfo, watched.Behavior, previous[relativePath])
		if stateError != nil {
			return stateError
		}
		snapshot[relativePath] = state
		return nil
	}, doublestar.WithFilesOnly())
	if walkError != nil {
		if errors.Is(walkError, context.Canceled) || errors.Is(walkError, context.DeadlineExceeded) {
			return nil, walkError
		}
		return nil, fmt.Errorf(matchFilesErrorTemplateConstant, watched.Pattern, root, walkError)
	}
	return snapshot, nil
}

func observe(absolutePath string, fileInfo fs.FileInfo, behavior Behavior, previous FileState) (FileState, error) {
	modified := fileInfo.ModTime().UnixNano()
	switch behavior {
	case BehaviorTimestamps:
		return FileState{ModifiedUnixNano: modified}, nil
	case BehaviorHash:
		hash, hashError := hashFile(absolutePath)
		if hashError != nil {
			return FileState{}, hashError
		}
		return FileState{Hash: hash}, nil
	default:
		if previous.ModifiedUnixNano == modified && len(previous.Hash) > 0 {
			return FileState{ModifiedUnixNano: modified, Hash: previous.Hash}, nil
		}
		hash, hashError := hashFile(absolutePath)
		if hashError != nil {
			return FileState{}, hashError
		}
		return FileState{ModifiedUnixNano: modified, Hash: hash}, nil
	}
}

func compareSnapshots(matcherIndex int, behavior Behavior, previous Snapshot, current Snapshot) []Change {
	changes := make([]Change, 0)
	for _, path := range sortedPaths(current) {
		previousState, existed := previous[path]
		if !existed {
			changes = append(changes, Change{Matcher: matcherIndex, Path: path, Kind: ChangeAdded})
			continue
		}
		if stateChanged(behavior, previousState, current[path]) {
			changes = append(changes, Change{Matcher: matcherIndex, Path: path, Kind: ChangeModified})
		}
	}
	for _, path := range sortedPaths(previous) {
		if _, exists := current[path]; !exists {
			changes = append(changes, Change{Matcher: matcherIndex, Path: path, Kind: ChangeRemoved})
		}
	}
	return changes
}

func stateChanged(behavior Behavior, previous FileState, current FileState) bool {
	if behavior == BehaviorTimestamps {
		return previous.ModifiedUnixNano != current.ModifiedUnixNano
	}
	return previous.Hash != current.Hash
}

func isExcluded(relativePath string, excludes []string) bool {
	for _, exclude := range excludes {
		if matched, _ := doublestar.Match(strings.TrimPrefix(exclude, currentDirectoryPrefixConstant), relativePath); matched {
			return true
		}
	}
	return false
}

func hashFile(absolutePath string) (string, error) {
	file, openError := os.Open(absolutePath)
	if openError != nil {
		return "", fmt.Errorf(hashFileErrorTemplateConstant, absolutePath, openError)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, copyError := io.Copy(hasher, file); copyError != nil {
		return "", fmt.Errorf(hashFileErrorTemplateConstant, absolutePath, copyError)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func sortedPaths(snapshot Snapshot) []string {
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
