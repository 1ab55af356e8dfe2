// Package snapshot defines the versioned document store contract the
// merge core builds on, plus the embedded bbolt implementation and a mock
// for tests.
package snapshot

import (
	"context"

	"github.com/kilupskalvis/ovc/internal/models"
)

// DiffKind classifies a node-level difference between two commits.
type DiffKind string

const (
	DiffAdded    DiffKind = "added"
	DiffRemoved  DiffKind = "removed"
	DiffModified DiffKind = "modified"
)

// NodeDiff is one entry of the store's raw structural diff.
type NodeDiff struct {
	NodeID string
	Kind   DiffKind
	Before *models.Node // nil for added
	After  *models.Node // nil for removed
}

// NodeChange is one node-level mutation applied by a commit. Node is nil
// for removals.
type NodeChange struct {
	NodeID string
	Kind   DiffKind
	Node   *models.Node
}

// CommitRequest describes a commit to be created atomically.
type CommitRequest struct {
	Parent      string // empty for a root commit
	MergeParent string // set for merge commits
	Author      string
	Message     string
	Changes     []NodeChange
}

// Store is the versioned document store the branch/merge layer consumes.
// Implementations must make Commit atomic: either the new commit and its
// state exist, or nothing changed.
type Store interface {
	// GetCommit returns commit metadata, or a NotFoundError.
	GetCommit(ctx context.Context, ref string) (*models.Commit, error)

	// StateAt materializes the full node state at a commit.
	StateAt(ctx context.Context, ref string) (map[string]*models.Node, error)

	// StructuralDiff computes the node-level diff between two commits.
	StructuralDiff(ctx context.Context, a, b string) ([]NodeDiff, error)

	// Commit applies changes on top of Parent and returns the new commit
	// ref. No branch head is moved; that is the caller's job.
	Commit(ctx context.Context, req CommitRequest) (string, error)

	// DiscardCommit removes a tentative commit no branch has adopted.
	DiscardCommit(ctx context.Context, ref string) error

	// CommonAncestor returns the lowest common ancestor of two commits,
	// or a NoCommonAncestorError for unrelated histories.
	CommonAncestor(ctx context.Context, a, b string) (string, error)
}
