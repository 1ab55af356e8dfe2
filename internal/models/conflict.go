package models

// ConflictType identifies the kind of merge conflict.
type ConflictType string

const (
	ConflictConcurrentModification ConflictType = "concurrent-modification"
	ConflictTypeMismatch           ConflictType = "type-mismatch"
	ConflictCardinalityViolation   ConflictType = "cardinality-violation"
	ConflictDanglingReference      ConflictType = "dangling-reference"
	ConflictOrphanedNode           ConflictType = "orphaned-node"
)

// Resolution is the state of a conflict after detection.
type Resolution string

const (
	ResolutionUnresolved     Resolution = "unresolved"
	ResolutionAutoMerged     Resolution = "auto-merged"
	ResolutionManualRequired Resolution = "manual-required"
)

// Conflict describes an incompatibility between two divergent changes to
// the same path. A conflict with ResolutionManualRequired blocks merge
// completion; auto-merged conflicts carry the resolved change in Resolved.
type Conflict struct {
	Path        ChangePath   `json:"path"`
	Type        ConflictType `json:"conflict_type"`
	Source      *Change      `json:"source_change,omitempty"`
	Target      *Change      `json:"target_change,omitempty"`
	Resolution  Resolution   `json:"resolution"`
	Resolved    *Change      `json:"resolved_change,omitempty"`
	Description string       `json:"description,omitempty"`
}

// Blocking reports whether this conflict prevents the merge from
// completing.
func (c *Conflict) Blocking() bool {
	return c.Resolution == ResolutionManualRequired
}
