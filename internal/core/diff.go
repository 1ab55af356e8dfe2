// Package core implements the OVC domain logic: structural diff
// computation, conflict detection, three-way merge, and the branch
// lifecycle service.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
)

// DiffEngine refines the snapshot store's node-level diff into
// field-level, merge-aware deltas. It never mutates store state.
type DiffEngine struct {
	store snapshot.Store
	hints models.HintSet
}

// NewDiffEngine creates a DiffEngine over the given store and hint set.
func NewDiffEngine(store snapshot.Store, hints models.HintSet) *DiffEngine {
	if hints == nil {
		hints = models.DefaultHints()
	}
	return &DiffEngine{store: store, hints: hints}
}

// ComputeDelta computes the structured delta between two commits. Changes
// are stable-sorted by path so two independently computed deltas over
// equivalent inputs are directly comparable.
func (e *DiffEngine) ComputeDelta(ctx context.Context, base, target string) (*models.Delta, error) {
	raw, err := e.store.StructuralDiff(ctx, base, target)
	if err != nil {
		return nil, err
	}

	var changes []*models.Change
	for _, nd := range raw {
		switch nd.Kind {
		case snapshot.DiffAdded:
			changes = append(changes, &models.Change{
				Path:     models.ChangePath{NodeID: nd.NodeID},
				Kind:     models.ChangeAdded,
				NodeKind: nd.After.Kind,
				After:    nd.After,
			})
		case snapshot.DiffRemoved:
			changes = append(changes, &models.Change{
				Path:     models.ChangePath{NodeID: nd.NodeID},
				Kind:     models.ChangeRemoved,
				NodeKind: nd.Before.Kind,
				Before:   nd.Before,
			})
		case snapshot.DiffModified:
			changes = append(changes, e.diffNode(nd.Before, nd.After)...)
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Path.Less(changes[j].Path)
	})

	return &models.Delta{Base: base, Target: target, Changes: changes}, nil
}

// diffNode walks the fields of a modified node, consulting the hint set to
// decide between identity-key item matching and atomic replacement.
func (e *DiffEngine) diffNode(before, after *models.Node) []*models.Change {
	var changes []*models.Change

	for _, field := range fieldUnion(before.Fields, after.Fields) {
		bv, bok := before.Fields[field]
		av, aok := after.Fields[field]
		path := models.ChangePath{NodeID: before.ID, Field: field}

		switch {
		case !bok:
			changes = append(changes, &models.Change{Path: path, Kind: models.ChangeAdded, After: av})
		case !aok:
			changes = append(changes, &models.Change{Path: path, Kind: models.ChangeRemoved, Before: bv})
		case valueEqual(bv, av):
			// unchanged
		default:
			hint := e.hints.Resolve(before.Kind, field, pick(av, bv))
			changes = append(changes, diffField(path, bv, av, hint)...)
		}
	}

	for _, c := range changes {
		c.NodeKind = before.Kind
	}
	return changes
}

// diffField produces the change records for a single modified field.
func diffField(path models.ChangePath, before, after any, hint models.MergeHint) []*models.Change {
	bList, bIsList := before.([]any)
	aList, aIsList := after.([]any)

	if bIsList && aIsList {
		switch hint.Strategy {
		case models.StrategyKeyedMap:
			return diffKeyedList(path, bList, aList, hint.IdentityKey)
		case models.StrategyUnorderedSet:
			return diffSet(path, bList, aList)
		}
	}

	return []*models.Change{{Path: path, Kind: models.ChangeModified, Before: before, After: after}}
}

// diffKeyedList matches list entries across versions by identity key and
// emits one change per added, removed, or modified item.
func diffKeyedList(path models.ChangePath, before, after []any, identityKey string) []*models.Change {
	bItems := itemsByKey(before, identityKey)
	aItems := itemsByKey(after, identityKey)

	var changes []*models.Change
	for _, key := range keyUnion(bItems, aItems) {
		itemPath := models.ChangePath{NodeID: path.NodeID, Field: path.Field, ItemKey: key}
		bv, bok := bItems[key]
		av, aok := aItems[key]
		switch {
		case !bok:
			changes = append(changes, &models.Change{Path: itemPath, Kind: models.ChangeAdded, After: av})
		case !aok:
			changes = append(changes, &models.Change{Path: itemPath, Kind: models.ChangeRemoved, Before: bv})
		case !valueEqual(bv, av):
			changes = append(changes, &models.Change{Path: itemPath, Kind: models.ChangeModified, Before: bv, After: av})
		}
	}
	return changes
}

// diffSet treats list entries as set members identified by their canonical
// encoding.
func diffSet(path models.ChangePath, before, after []any) []*models.Change {
	bMembers := make(map[string]any, len(before))
	for _, v := range before {
		bMembers[canonicalKey(v)] = v
	}
	aMembers := make(map[string]any, len(after))
	for _, v := range after {
		aMembers[canonicalKey(v)] = v
	}

	var changes []*models.Change
	for _, key := range keyUnion(bMembers, aMembers) {
		itemPath := models.ChangePath{NodeID: path.NodeID, Field: path.Field, ItemKey: key}
		_, bok := bMembers[key]
		av, aok := aMembers[key]
		switch {
		case !bok:
			changes = append(changes, &models.Change{Path: itemPath, Kind: models.ChangeAdded, After: av})
		case !aok:
			changes = append(changes, &models.Change{Path: itemPath, Kind: models.ChangeRemoved, Before: bMembers[key]})
		}
	}
	return changes
}

// itemsByKey indexes list entries by their identity-key value. Entries
// without the key fall back to their canonical encoding, so nothing is
// silently dropped.
func itemsByKey(list []any, identityKey string) map[string]any {
	items := make(map[string]any, len(list))
	for _, v := range list {
		if obj, ok := v.(map[string]any); ok {
			if key, ok := obj[identityKey].(string); ok && key != "" {
				items[key] = v
				continue
			}
		}
		items[canonicalKey(v)] = v
	}
	return items
}

func fieldUnion(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func keyUnion(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valueEqual compares two values by canonical JSON encoding.
func valueEqual(a, b any) bool {
	return canonicalKey(a) == canonicalKey(b)
}

// canonicalKey returns a deterministic digest of a value's JSON form.
func canonicalKey(v any) string {
	data, _ := json.Marshal(v)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

func pick(a, b any) any {
	if a != nil {
		return a
	}
	return b
}
