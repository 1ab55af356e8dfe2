package core

import (
	"fmt"
	"sort"

	"github.com/kilupskalvis/ovc/internal/models"
)

// maxMergeDepth bounds recursive resolution of nested keyed values so
// adversarial or deeply nested definitions cannot recurse without limit.
const maxMergeDepth = 2

// ConflictResolver classifies overlapping changes between two deltas over
// the same base commit. It is a pure function over its inputs: no store
// access, no side effects.
type ConflictResolver struct {
	hints models.HintSet
}

// NewConflictResolver creates a resolver using the given hint set.
func NewConflictResolver(hints models.HintSet) *ConflictResolver {
	if hints == nil {
		hints = models.DefaultHints()
	}
	return &ConflictResolver{hints: hints}
}

// DetectConflicts compares two deltas sharing a base commit and returns
// every conflict in path order. Identical changes on both sides collapse
// silently and produce no conflict record.
func (r *ConflictResolver) DetectConflicts(source, target *models.Delta) []*models.Conflict {
	var conflicts []*models.Conflict

	sourceByPath := source.ByPath()
	targetByPath := target.ByPath()

	for path, sc := range sourceByPath {
		tc, ok := targetByPath[path]
		if !ok {
			continue
		}
		if c := r.classifyOverlap(sc, tc); c != nil {
			conflicts = append(conflicts, c)
		}
	}

	conflicts = append(conflicts, r.detectRemovalConflicts(source, target)...)
	conflicts = append(conflicts, r.detectCardinalityNarrowing(source, target)...)
	conflicts = append(conflicts, r.detectDanglingReferences(source, target)...)

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Path.Less(conflicts[j].Path)
	})
	return conflicts
}

// classifyOverlap handles two changes at the same path. Returns nil when
// there is no real conflict.
func (r *ConflictResolver) classifyOverlap(sc, tc *models.Change) *models.Conflict {
	// Identical change on both sides: no real conflict.
	if sc.Kind == tc.Kind && valueEqual(sc.After, tc.After) {
		return nil
	}

	conflict := &models.Conflict{
		Path:       sc.Path,
		Type:       models.ConflictConcurrentModification,
		Source:     sc,
		Target:     tc,
		Resolution: models.ResolutionManualRequired,
	}

	// Editing something the other side deleted is never auto-resolved.
	if (sc.Kind == models.ChangeRemoved) != (tc.Kind == models.ChangeRemoved) {
		conflict.Description = "one side removed what the other side changed"
		return conflict
	}

	if jsonType(sc.After) != jsonType(tc.After) {
		conflict.Type = models.ConflictTypeMismatch
		conflict.Description = fmt.Sprintf("sides changed %s to incompatible types (%s vs %s)",
			sc.Path, jsonType(sc.After), jsonType(tc.After))
		return conflict
	}

	conflict.Description = fmt.Sprintf("both sides changed %s to different values", sc.Path)
	r.tryAutoResolve(conflict, sc, tc)
	return conflict
}

// tryAutoResolve applies the field's conflict policy, upgrading the
// conflict to auto-merged when the policy or a structural merge settles it.
func (r *ConflictResolver) tryAutoResolve(conflict *models.Conflict, sc, tc *models.Change) {
	hint := r.hints.Resolve(sc.NodeKind, sc.Path.Field, pick(sc.After, sc.Before))

	switch hint.ConflictPolicy {
	case models.PolicyPreferSource:
		conflict.Resolution = models.ResolutionAutoMerged
		conflict.Resolved = sc
		conflict.Description += "; resolved preferring source"
	case models.PolicyPreferTarget:
		conflict.Resolution = models.ResolutionAutoMerged
		conflict.Resolved = tc
		conflict.Description += "; resolved preferring target"
	case models.PolicyMergeBoth:
		r.tryStructuralMerge(conflict, sc, tc)
	case models.PolicyManual, models.PolicyFailFast:
		// stays manual-required
	}

	// Item-level overlaps under keyed-map or unordered-set strategies get
	// a structural merge attempt even without an explicit merge-both
	// policy.
	if conflict.Resolution == models.ResolutionManualRequired &&
		sc.Path.ItemKey != "" &&
		(hint.Strategy == models.StrategyKeyedMap || hint.Strategy == models.StrategyUnorderedSet) {
		r.tryStructuralMerge(conflict, sc, tc)
	}
}

// tryStructuralMerge attempts a bounded recursive merge of two divergent
// map values against their shared base.
func (r *ConflictResolver) tryStructuralMerge(conflict *models.Conflict, sc, tc *models.Change) {
	merged, ok := mergeValues(sc.Before, sc.After, tc.After, 1)
	if !ok {
		return
	}
	conflict.Resolution = models.ResolutionAutoMerged
	conflict.Resolved = &models.Change{
		Path:     sc.Path,
		Kind:     sc.Kind,
		NodeKind: sc.NodeKind,
		Before:   sc.Before,
		After:    merged,
	}
	conflict.Description += "; structurally merged"
}

// mergeValues merges two divergent descendants of base. Maps merge
// entry-wise, recursing up to maxMergeDepth; anything else merges only
// when one side left the base value alone.
func mergeValues(base, source, target any, depth int) (any, bool) {
	if valueEqual(source, target) {
		return source, true
	}
	if valueEqual(base, source) {
		return target, true
	}
	if valueEqual(base, target) {
		return source, true
	}

	if depth >= maxMergeDepth {
		return nil, false
	}

	sMap, sok := source.(map[string]any)
	tMap, tok := target.(map[string]any)
	if !sok || !tok {
		return nil, false
	}
	bMap, _ := base.(map[string]any)

	merged := make(map[string]any, len(sMap))
	for _, key := range keyUnion(sMap, tMap) {
		sub, ok := mergeValues(bMap[key], sMap[key], tMap[key], depth+1)
		if !ok {
			return nil, false
		}
		if sub != nil {
			merged[key] = sub
		}
	}
	return merged, true
}

// detectRemovalConflicts reports changes on one side underneath a node the
// other side removed entirely.
func (r *ConflictResolver) detectRemovalConflicts(source, target *models.Delta) []*models.Conflict {
	var conflicts []*models.Conflict
	conflicts = append(conflicts, removalConflicts(source.NodeRemovals(), target, true)...)
	conflicts = append(conflicts, removalConflicts(target.NodeRemovals(), source, false)...)
	return conflicts
}

func removalConflicts(removals map[string]*models.Change, other *models.Delta, removedBySource bool) []*models.Conflict {
	var conflicts []*models.Conflict
	for _, change := range other.Changes {
		removal, ok := removals[change.Path.NodeID]
		if !ok || change.Path.IsNodeLevel() {
			continue
		}

		conflict := &models.Conflict{
			Path:       change.Path,
			Type:       models.ConflictConcurrentModification,
			Resolution: models.ResolutionManualRequired,
			Description: fmt.Sprintf("node '%s' was removed by one side while the other changed %s",
				change.Path.NodeID, change.Path),
		}
		if removedBySource {
			conflict.Source = removal
			conflict.Target = change
		} else {
			conflict.Source = change
			conflict.Target = removal
		}
		conflicts = append(conflicts, conflict)
	}
	return conflicts
}

// detectCardinalityNarrowing flags a cardinality narrowing on one side
// combined with new link instances on the other.
func (r *ConflictResolver) detectCardinalityNarrowing(source, target *models.Delta) []*models.Conflict {
	var conflicts []*models.Conflict
	conflicts = append(conflicts, narrowingConflicts(source, target, true)...)
	conflicts = append(conflicts, narrowingConflicts(target, source, false)...)
	return conflicts
}

func narrowingConflicts(narrowing, other *models.Delta, narrowedBySource bool) []*models.Conflict {
	var conflicts []*models.Conflict
	for _, nc := range narrowing.Changes {
		if nc.Path.Field != models.FieldCardinality || nc.Kind != models.ChangeModified {
			continue
		}
		if cardinalityRank(nc.After) >= cardinalityRank(nc.Before) {
			continue
		}
		for _, oc := range other.Changes {
			if oc.Path.NodeID != nc.Path.NodeID || oc.Path.Field != models.FieldInstances || oc.Kind != models.ChangeAdded {
				continue
			}
			conflict := &models.Conflict{
				Path:       nc.Path,
				Type:       models.ConflictCardinalityViolation,
				Resolution: models.ResolutionManualRequired,
				Description: fmt.Sprintf("cardinality of '%s' narrowed from %v to %v while the other side added instance %s",
					nc.Path.NodeID, nc.Before, nc.After, oc.Path),
			}
			if narrowedBySource {
				conflict.Source = nc
				conflict.Target = oc
			} else {
				conflict.Source = oc
				conflict.Target = nc
			}
			conflicts = append(conflicts, conflict)
			break
		}
	}
	return conflicts
}

// detectDanglingReferences flags additions or modifications on one side
// that reference a node the other side removed.
func (r *ConflictResolver) detectDanglingReferences(source, target *models.Delta) []*models.Conflict {
	var conflicts []*models.Conflict
	conflicts = append(conflicts, danglingConflicts(source.NodeRemovals(), target, true)...)
	conflicts = append(conflicts, danglingConflicts(target.NodeRemovals(), source, false)...)
	return conflicts
}

func danglingConflicts(removals map[string]*models.Change, other *models.Delta, removedBySource bool) []*models.Conflict {
	var conflicts []*models.Conflict
	for _, change := range other.Changes {
		if change.Kind == models.ChangeRemoved {
			continue
		}
		for removedID, removal := range removals {
			if !referencesNode(change, removedID) {
				continue
			}
			conflict := &models.Conflict{
				Path:       change.Path,
				Type:       models.ConflictDanglingReference,
				Resolution: models.ResolutionManualRequired,
				Description: fmt.Sprintf("%s references node '%s' which the other side removed",
					change.Path, removedID),
			}
			if removedBySource {
				conflict.Source = removal
				conflict.Target = change
			} else {
				conflict.Source = change
				conflict.Target = removal
			}
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

// referencesNode reports whether a change's new value points at the given
// node: a link-type node whose source or target names it, or a direct
// source/target field edit.
func referencesNode(change *models.Change, nodeID string) bool {
	if change.Path.IsNodeLevel() {
		node, ok := change.After.(*models.Node)
		if !ok || node.Kind != models.KindLinkType {
			return false
		}
		return node.StringField(models.FieldSource) == nodeID || node.StringField(models.FieldTarget) == nodeID
	}
	if change.Path.Field == models.FieldSource || change.Path.Field == models.FieldTarget {
		ref, _ := change.After.(string)
		return ref == nodeID
	}
	return false
}

// cardinalityRank orders cardinalities from most to least restrictive.
func cardinalityRank(v any) int {
	switch v {
	case models.OneToOne:
		return 1
	case models.OneToMany:
		return 2
	case models.ManyToMany:
		return 3
	}
	return 0
}

// jsonType names the JSON type category of a value.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case *models.Node:
		return "node"
	}
	return "unknown"
}
