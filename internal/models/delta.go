package models

// ChangeKind classifies a single change within a delta.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// ChangePath locates a change: a node, optionally a field on that node,
// and optionally an item within a list/map-valued field. Paths are stable
// identities, not positional indexes, so deltas over the same base can be
// compared by path equality.
type ChangePath struct {
	NodeID  string `json:"node_id"`
	Field   string `json:"field,omitempty"`    // empty for node-level changes
	ItemKey string `json:"item_key,omitempty"` // empty for whole-field changes
}

// String renders the path in its canonical "node/field[item]" form.
func (p ChangePath) String() string {
	s := p.NodeID
	if p.Field != "" {
		s += "/" + p.Field
	}
	if p.ItemKey != "" {
		s += "[" + p.ItemKey + "]"
	}
	return s
}

// Less orders paths lexicographically by node ID, then field, then item key.
func (p ChangePath) Less(o ChangePath) bool {
	if p.NodeID != o.NodeID {
		return p.NodeID < o.NodeID
	}
	if p.Field != o.Field {
		return p.Field < o.Field
	}
	return p.ItemKey < o.ItemKey
}

// IsNodeLevel reports whether the path addresses a whole node.
func (p ChangePath) IsNodeLevel() bool {
	return p.Field == ""
}

// Change is one entry in a delta. For node-level changes Before/After hold
// *Node values; for field and item changes they hold the field or item
// value.
type Change struct {
	Path     ChangePath `json:"path"`
	Kind     ChangeKind `json:"kind"`
	NodeKind NodeKind   `json:"node_kind,omitempty"`
	Before   any        `json:"before,omitempty"`
	After    any        `json:"after,omitempty"`
}

// Delta is an ordered sequence of changes between two commits, stable-sorted
// by path.
type Delta struct {
	Base    string    `json:"base"`
	Target  string    `json:"target"`
	Changes []*Change `json:"changes"`
}

// Empty reports whether the delta contains no changes.
func (d *Delta) Empty() bool {
	return d == nil || len(d.Changes) == 0
}

// ByPath returns the delta's changes indexed by canonical path string.
func (d *Delta) ByPath() map[string]*Change {
	m := make(map[string]*Change, len(d.Changes))
	for _, c := range d.Changes {
		m[c.Path.String()] = c
	}
	return m
}

// NodeRemovals returns the node-level removals in the delta, keyed by node ID.
func (d *Delta) NodeRemovals() map[string]*Change {
	m := make(map[string]*Change)
	for _, c := range d.Changes {
		if c.Path.IsNodeLevel() && c.Kind == ChangeRemoved {
			m[c.Path.NodeID] = c
		}
	}
	return m
}
