package models

import "fmt"

// MergeStrategy describes how concurrent changes to a field are combined.
type MergeStrategy string

const (
	StrategyOrderedList  MergeStrategy = "ordered-list-merge"
	StrategyUnorderedSet MergeStrategy = "unordered-set-merge"
	StrategyKeyedMap     MergeStrategy = "keyed-map-merge"
	StrategyAtomic       MergeStrategy = "atomic-replace"
	StrategyCustom       MergeStrategy = "custom"
)

// Valid reports whether s is one of the closed set of strategies.
func (s MergeStrategy) Valid() bool {
	switch s {
	case StrategyOrderedList, StrategyUnorderedSet, StrategyKeyedMap, StrategyAtomic, StrategyCustom:
		return true
	}
	return false
}

// ConflictPolicy decides what happens when both sides change the same path.
type ConflictPolicy string

const (
	PolicyManual       ConflictPolicy = "manual"
	PolicyPreferSource ConflictPolicy = "prefer-source"
	PolicyPreferTarget ConflictPolicy = "prefer-target"
	PolicyMergeBoth    ConflictPolicy = "merge-both"
	PolicyFailFast     ConflictPolicy = "fail-fast"
)

// Valid reports whether p is one of the closed set of policies.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyManual, PolicyPreferSource, PolicyPreferTarget, PolicyMergeBoth, PolicyFailFast:
		return true
	}
	return false
}

// MergeHint is per-field metadata describing how to diff and merge that
// field on a given node kind.
type MergeHint struct {
	Strategy       MergeStrategy  `json:"strategy"`
	IdentityKey    string         `json:"identity_key,omitempty"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy"`
	PreserveOrder  bool           `json:"preserve_order,omitempty"`
}

// Validate checks that the hint's enum fields hold legal values.
func (h MergeHint) Validate() error {
	if !h.Strategy.Valid() {
		return fmt.Errorf("invalid merge strategy %q", h.Strategy)
	}
	if !h.ConflictPolicy.Valid() {
		return fmt.Errorf("invalid conflict policy %q", h.ConflictPolicy)
	}
	if h.Strategy == StrategyKeyedMap && h.IdentityKey == "" {
		return fmt.Errorf("keyed-map-merge requires an identity key")
	}
	return nil
}

// HintSet maps node kind and field name to a merge hint.
type HintSet map[NodeKind]map[string]MergeHint

// DefaultHints returns the built-in hint set for the ontology node kinds.
func DefaultHints() HintSet {
	return HintSet{
		KindObjectType: {
			FieldProperties: {Strategy: StrategyKeyedMap, IdentityKey: FieldName, ConflictPolicy: PolicyManual},
		},
		KindLinkType: {
			FieldInstances: {Strategy: StrategyKeyedMap, IdentityKey: "key", ConflictPolicy: PolicyManual},
		},
	}
}

// Resolve returns the hint governing the given field. An explicit hint wins;
// otherwise a list of objects that all carry a "name" field defaults to
// keyed-map-merge on "name", and everything else to atomic-replace.
func (hs HintSet) Resolve(kind NodeKind, field string, value any) MergeHint {
	if fields, ok := hs[kind]; ok {
		if h, ok := fields[field]; ok {
			return h
		}
	}
	if list, ok := value.([]any); ok && listKeyedByName(list) {
		return MergeHint{Strategy: StrategyKeyedMap, IdentityKey: FieldName, ConflictPolicy: PolicyManual}
	}
	return MergeHint{Strategy: StrategyAtomic, ConflictPolicy: PolicyManual}
}

// Set records an explicit hint for a kind/field pair.
func (hs HintSet) Set(kind NodeKind, field string, hint MergeHint) {
	if hs[kind] == nil {
		hs[kind] = make(map[string]MergeHint)
	}
	hs[kind][field] = hint
}

func listKeyedByName(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := obj[FieldName].(string); !ok {
			return false
		}
	}
	return true
}
