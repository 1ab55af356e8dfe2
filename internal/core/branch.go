package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
	"github.com/kilupskalvis/ovc/internal/store"
)

// DefaultMergeTimeout bounds a merge operation when no timeout is
// configured.
const DefaultMergeTimeout = 60 * time.Second

// BranchService owns branch lifecycle and exposes diff/merge to callers.
// It is the only writer of Branch records and enforces per-target-branch
// mutual exclusion for merges. Construct with NewBranchService; all
// dependencies are passed explicitly.
type BranchService struct {
	registry  *store.Registry
	snapshots snapshot.Store
	diff      *DiffEngine
	merge     *MergeEngine
	locks     *LockManager
	logger    *slog.Logger
	protected map[string]bool
	timeout   time.Duration
}

// BranchServiceOptions tunes optional service behavior.
type BranchServiceOptions struct {
	// ProtectedBranches cannot be deleted. Defaults to ["main"].
	ProtectedBranches []string
	// MergeTimeout bounds each merge operation.
	MergeTimeout time.Duration
	Logger       *slog.Logger
}

// NewBranchService wires a BranchService from its collaborators.
func NewBranchService(registry *store.Registry, snapshots snapshot.Store, diff *DiffEngine, merge *MergeEngine, opts BranchServiceOptions) *BranchService {
	protected := opts.ProtectedBranches
	if protected == nil {
		protected = []string{"main"}
	}
	protectedSet := make(map[string]bool, len(protected))
	for _, name := range protected {
		protectedSet[name] = true
	}

	timeout := opts.MergeTimeout
	if timeout <= 0 {
		timeout = DefaultMergeTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BranchService{
		registry:  registry,
		snapshots: snapshots,
		diff:      diff,
		merge:     merge,
		locks:     NewLockManager(),
		logger:    logger,
		protected: protectedSet,
		timeout:   timeout,
	}
}

// CreateBranch forks a new branch from parent's current head.
func (s *BranchService) CreateBranch(ctx context.Context, name, parent, createdBy, description string) (*models.Branch, error) {
	if name == "" {
		return nil, fmt.Errorf("branch name cannot be empty")
	}

	parentBranch, err := s.registry.GetBranch(parent)
	if err != nil {
		return nil, err
	}
	if parentBranch == nil {
		return nil, &models.NotFoundError{Kind: "branch", Ref: parent}
	}

	branch := &models.Branch{
		Name:        name,
		Parent:      parent,
		HeadCommit:  parentBranch.HeadCommit,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   createdBy,
	}
	if err := s.registry.CreateBranch(branch); err != nil {
		return nil, err
	}

	s.logger.Info("branch created", "branch", name, "parent", parent, "head", shortID(branch.HeadCommit))
	return branch, nil
}

// CreateRootBranch records the root branch pointing at an existing commit.
// Used once, at repository initialization.
func (s *BranchService) CreateRootBranch(ctx context.Context, name, commitRef, createdBy string) (*models.Branch, error) {
	if _, err := s.snapshots.GetCommit(ctx, commitRef); err != nil {
		return nil, err
	}

	branch := &models.Branch{
		Name:       name,
		HeadCommit: commitRef,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  createdBy,
	}
	if err := s.registry.CreateBranch(branch); err != nil {
		return nil, err
	}
	return branch, nil
}

// DeleteBranch soft-deletes a branch. Protected branches and branches
// with a merge in flight are refused.
func (s *BranchService) DeleteBranch(ctx context.Context, name string) error {
	if s.protected[name] {
		return &models.ProtectedBranchError{Name: name}
	}
	if holder, locked := s.locks.Holder(name); locked {
		return &models.BranchLockedError{Name: name, Holder: holder}
	}

	branch, err := s.registry.GetBranch(name)
	if err != nil {
		return err
	}
	if branch == nil {
		return &models.NotFoundError{Kind: "branch", Ref: name}
	}

	if err := s.registry.DeleteBranch(name); err != nil {
		return err
	}
	s.logger.Info("branch deleted", "branch", name)
	return nil
}

// ListBranches returns all non-deleted branches sorted by name.
func (s *BranchService) ListBranches(ctx context.Context) ([]*models.Branch, error) {
	return s.registry.ListBranches()
}

// GetBranch returns a branch by name.
func (s *BranchService) GetBranch(ctx context.Context, name string) (*models.Branch, error) {
	branch, err := s.registry.GetBranch(name)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, &models.NotFoundError{Kind: "branch", Ref: name}
	}
	return branch, nil
}

// GetDiff computes the delta between two refs (branch names or commit
// refs). Read-only; no lock required.
func (s *BranchService) GetDiff(ctx context.Context, from, to string) (*models.Delta, error) {
	fromRef, err := s.ResolveRef(ctx, from)
	if err != nil {
		return nil, err
	}
	toRef, err := s.ResolveRef(ctx, to)
	if err != nil {
		return nil, err
	}
	return s.diff.ComputeDelta(ctx, fromRef, toRef)
}

// MergeBranches merges source into target under target's exclusive lock.
// The lock is released on every exit path.
func (s *BranchService) MergeBranches(ctx context.Context, sourceName, targetName, author, message string) (*models.MergeResult, error) {
	if sourceName == targetName {
		return nil, fmt.Errorf("cannot merge branch '%s' into itself", sourceName)
	}

	holder := uuid.NewString()
	if err := s.locks.Acquire(targetName, holder); err != nil {
		return nil, err
	}
	defer s.locks.Release(targetName, holder)

	// Branch heads are read under the target lock; a read taken earlier
	// could be stale by the time the lock is held, and a merge computed
	// from a stale head overwrites whatever advanced it.
	source, err := s.GetBranch(ctx, sourceName)
	if err != nil {
		return nil, err
	}
	target, err := s.GetBranch(ctx, targetName)
	if err != nil {
		return nil, err
	}

	if err := s.registry.SetLock(targetName, true, holder); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.registry.SetLock(targetName, false, ""); err != nil {
			s.logger.Warn("failed to clear lock state", "branch", targetName, "error", err)
		}
	}()

	mergeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("merge started",
		"source", sourceName, "target", targetName, "author", author, "lock", holder)

	result, err := s.merge.Merge(mergeCtx, MergeRequest{
		Source:  source,
		Target:  target,
		Author:  author,
		Message: message,
	})
	if err != nil {
		return nil, err
	}

	if result.Status == models.MergeSuccess {
		if err := s.registry.UpdateHead(targetName, result.MergeCommit); err != nil {
			return nil, fmt.Errorf("merge commit %s created but head update failed: %w",
				shortID(result.MergeCommit), err)
		}
	}

	return result, nil
}

// ResolveRef resolves a branch name or commit ref to a commit ref.
func (s *BranchService) ResolveRef(ctx context.Context, ref string) (string, error) {
	branch, err := s.registry.GetBranch(ref)
	if err != nil {
		return "", err
	}
	if branch != nil {
		return branch.HeadCommit, nil
	}

	if _, err := s.snapshots.GetCommit(ctx, ref); err != nil {
		return "", err
	}
	return ref, nil
}
