// Package acquisition fetches, checks out and builds executors into the cache.
package acquisition

import (
	"context"

	"github.com/tyemirov/exres/internal/cache"
	"github.com/tyemirov/exres/internal/descriptor"
	"github.com/tyemirov/exres/internal/matcher"
)

// Reason explains why an acquisition was or was not needed.
type Reason string

// Acquisition reasons.
const (
	ReasonAbsent          Reason = "absent"
	ReasonArtifactMissing Reason = "artifact_missing"
	ReasonRebuildAlways   Reason = "rebuild_always"
	ReasonWatchChanged    Reason = "watched_files_changed"
	ReasonPullRequested   Reason = "pull_requested"
	ReasonUpToDate        Reason = "up_to_date"
)

// Target is one descriptor to acquire together with its cache placement.
type Target struct {
	Fingerprint         string
	Descriptor          descriptor.Descriptor
	Previous            *cache.Record
	EntryDirectory      string
	RepositoryDirectory string
	ScratchDirectory    string
}

// Plan is the result of inspecting a target without mutating anything.
type Plan struct {
	Needed    bool
	Reason    Reason
	Signature matcher.Signature
	Changes   []matcher.Change
}

// Outcome describes the artifact produced by an acquisition.
type Outcome struct {
	ArtifactPath string
	Kind         descriptor.Kind
	Revision     string
	Signature    matcher.Signature
	Built        bool
}

// Strategy acquires one descriptor variant.
type Strategy interface {
	Inspect(executionContext context.Context, target Target) (Plan, error)
	Acquire(executionContext context.Context, target Target, plan Plan) (Outcome, error)
}
