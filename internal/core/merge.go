package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
)

// MergeEngine orchestrates three-way merges: ancestor resolution, delta
// computation, conflict classification, change application, and post-merge
// validation. Domain-level blocking is always reported as a MergeResult,
// never as an error.
type MergeEngine struct {
	store    snapshot.Store
	diff     *DiffEngine
	resolver *ConflictResolver
	logger   *slog.Logger
}

// MergeRequest names the branches and provenance of a merge.
type MergeRequest struct {
	Source  *models.Branch
	Target  *models.Branch
	Author  string
	Message string
}

// NewMergeEngine constructs a MergeEngine with its dependencies injected.
func NewMergeEngine(store snapshot.Store, diff *DiffEngine, resolver *ConflictResolver, logger *slog.Logger) *MergeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeEngine{store: store, diff: diff, resolver: resolver, logger: logger}
}

// Merge performs a three-way merge of source into target. The target
// branch head is NOT advanced here; on success the caller adopts
// MergeResult.MergeCommit under its branch lock.
func (e *MergeEngine) Merge(ctx context.Context, req MergeRequest) (*models.MergeResult, error) {
	result := &models.MergeResult{
		SourceBranch: req.Source.Name,
		TargetBranch: req.Target.Name,
		Author:       req.Author,
		Message:      req.Message,
		Timestamp:    time.Now().UTC(),
	}

	ancestor, err := e.store.CommonAncestor(ctx, req.Source.HeadCommit, req.Target.HeadCommit)
	if err != nil {
		return nil, err
	}

	var deltaSource, deltaTarget *models.Delta
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deltaSource, err = e.diff.ComputeDelta(gctx, ancestor, req.Source.HeadCommit)
		return err
	})
	g.Go(func() error {
		var err error
		deltaTarget, err = e.diff.ComputeDelta(gctx, ancestor, req.Target.HeadCommit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Nothing new on the source side: nothing to merge.
	if deltaSource.Empty() {
		return nil, &models.NoChangesError{Source: req.Source.Name, Target: req.Target.Name}
	}

	// Target has not diverged: fast-forward to the source head without a
	// merge commit.
	if deltaTarget.Empty() {
		e.logger.Info("fast-forward merge",
			"source", req.Source.Name, "target", req.Target.Name,
			"commit", shortID(req.Source.HeadCommit))
		result.Status = models.MergeSuccess
		result.MergeCommit = req.Source.HeadCommit
		result.FastForward = true
		return result, nil
	}

	conflicts := e.resolver.DetectConflicts(deltaSource, deltaTarget)
	if hasBlocking(conflicts) {
		e.logger.Info("merge blocked by conflicts",
			"source", req.Source.Name, "target", req.Target.Name,
			"conflicts", len(conflicts))
		result.Status = models.MergeBlocked
		result.Conflicts = conflicts
		return result, nil
	}

	merged, err := e.computeMergedState(ctx, req.Target.HeadCommit, deltaSource, conflicts)
	if err != nil {
		return nil, err
	}

	targetState, err := e.store.StateAt(ctx, req.Target.HeadCommit)
	if err != nil {
		return nil, err
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s' into %s", req.Source.Name, req.Target.Name)
	}
	result.Message = message

	mergeCommit, err := e.store.Commit(ctx, snapshot.CommitRequest{
		Parent:      req.Target.HeadCommit,
		MergeParent: req.Source.HeadCommit,
		Author:      req.Author,
		Message:     message,
		Changes:     toNodeChanges(snapshot.DiffStates(targetState, merged)),
	})
	if err != nil {
		return nil, err
	}

	result.Conflicts = conflicts

	// Re-check domain rules on the committed state, not just the deltas,
	// to catch compound violations.
	if done := e.validateCommitted(ctx, mergeCommit, result); done {
		return result, nil
	}

	result.Status = models.MergeSuccess
	result.MergeCommit = mergeCommit
	e.logger.Info("merge succeeded",
		"source", req.Source.Name, "target", req.Target.Name,
		"commit", shortID(mergeCommit), "auto_resolved", len(conflicts))
	return result, nil
}

// computeMergedState materializes the merged graph: the target state plus
// every non-conflicting source change, plus the auto-merged resolutions.
func (e *MergeEngine) computeMergedState(ctx context.Context, targetHead string, deltaSource *models.Delta, conflicts []*models.Conflict) (map[string]*models.Node, error) {
	merged, err := e.store.StateAt(ctx, targetHead)
	if err != nil {
		return nil, err
	}

	conflicting := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		conflicting[c.Path.String()] = true
	}

	for _, change := range deltaSource.Changes {
		if conflicting[change.Path.String()] {
			continue
		}
		e.applyChange(merged, change)
	}
	for _, c := range conflicts {
		if c.Resolution == models.ResolutionAutoMerged && c.Resolved != nil {
			e.applyChange(merged, c.Resolved)
		}
	}

	return merged, nil
}

// applyChange mutates state in place with a single change record.
func (e *MergeEngine) applyChange(state map[string]*models.Node, change *models.Change) {
	if change.Path.IsNodeLevel() {
		switch change.Kind {
		case models.ChangeRemoved:
			delete(state, change.Path.NodeID)
		default:
			if node, ok := change.After.(*models.Node); ok {
				state[change.Path.NodeID] = node.Clone()
			}
		}
		return
	}

	node, ok := state[change.Path.NodeID]
	if !ok {
		return
	}

	if change.Path.ItemKey == "" {
		switch change.Kind {
		case models.ChangeRemoved:
			delete(node.Fields, change.Path.Field)
		default:
			node.Fields[change.Path.Field] = models.CloneValue(change.After)
		}
		return
	}

	hint := e.diff.hints.Resolve(change.NodeKind, change.Path.Field, node.Fields[change.Path.Field])
	applyItemChange(node, change, hint)
}

// applyItemChange updates a single entry in a list-valued field, matching
// by the hint's identity key (or canonical encoding for sets).
func applyItemChange(node *models.Node, change *models.Change, hint models.MergeHint) {
	list, _ := node.Fields[change.Path.Field].([]any)

	idx := -1
	for i, item := range list {
		if itemIdentity(item, hint) == change.Path.ItemKey {
			idx = i
			break
		}
	}

	switch change.Kind {
	case models.ChangeRemoved:
		if idx >= 0 {
			list = append(list[:idx], list[idx+1:]...)
		}
	default:
		value := models.CloneValue(change.After)
		if idx >= 0 {
			list[idx] = value
		} else {
			list = append(list, value)
		}
	}

	node.Fields[change.Path.Field] = list
}

// itemIdentity returns the identity of a list entry under the given hint.
func itemIdentity(item any, hint models.MergeHint) string {
	if hint.IdentityKey != "" {
		if obj, ok := item.(map[string]any); ok {
			if key, ok := obj[hint.IdentityKey].(string); ok && key != "" {
				return key
			}
		}
	}
	return canonicalKey(item)
}

// validateCommitted runs post-merge validation on the committed state.
// Returns true when the result was finalized here (blocked or partial).
func (e *MergeEngine) validateCommitted(ctx context.Context, mergeCommit string, result *models.MergeResult) bool {
	state, err := e.store.StateAt(ctx, mergeCommit)
	if err != nil {
		// The commit exists but cannot be read back; report it rather
		// than guessing.
		result.Status = models.MergePartial
		result.MergeCommit = mergeCommit
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("merge commit %s created but validation read failed: %v", shortID(mergeCommit), err))
		return true
	}

	issues := ValidateState(state)
	var blocking []*models.Conflict
	for _, issue := range issues {
		if issue.Blocking() {
			blocking = append(blocking, issue)
		} else {
			result.Warnings = append(result.Warnings, issue.Description)
			result.Conflicts = append(result.Conflicts, issue)
		}
	}
	if len(blocking) == 0 {
		return false
	}

	e.logger.Warn("merge rolled back by post-merge validation",
		"commit", shortID(mergeCommit), "violations", len(blocking))
	result.Conflicts = append(result.Conflicts, blocking...)

	if err := e.store.DiscardCommit(ctx, mergeCommit); err != nil {
		result.Status = models.MergePartial
		result.MergeCommit = mergeCommit
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("tentative commit %s could not be discarded: %v", shortID(mergeCommit), err))
		return true
	}

	result.Status = models.MergeBlocked
	result.MergeCommit = ""
	return true
}

func hasBlocking(conflicts []*models.Conflict) bool {
	for _, c := range conflicts {
		if c.Blocking() {
			return true
		}
	}
	return false
}

func toNodeChanges(diffs []snapshot.NodeDiff) []snapshot.NodeChange {
	changes := make([]snapshot.NodeChange, 0, len(diffs))
	for _, d := range diffs {
		change := snapshot.NodeChange{NodeID: d.NodeID, Kind: d.Kind}
		if d.Kind != snapshot.DiffRemoved {
			change.Node = d.After
		}
		changes = append(changes, change)
	}
	return changes
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
