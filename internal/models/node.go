// Package models defines the core data structures used throughout OVC
// including graph nodes, deltas, merge hints, conflicts, and commits.
package models

// NodeKind identifies the kind of an ontology graph node.
type NodeKind string

const (
	KindObjectType NodeKind = "object-type"
	KindLinkType   NodeKind = "link-type"
)

// Cardinality values carried by link-type nodes in their "cardinality" field.
const (
	OneToOne   = "ONE_TO_ONE"
	OneToMany  = "ONE_TO_MANY"
	ManyToMany = "MANY_TO_MANY"
)

// Well-known field names on ontology nodes.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldProperties  = "properties"
	FieldSource      = "source"
	FieldTarget      = "target"
	FieldCardinality = "cardinality"
	FieldInstances   = "instances"
)

// Node is a single entity in the ontology graph as held by the snapshot
// store: an object type or a link type with its field values.
type Node struct {
	ID     string         `json:"id"`
	Kind   NodeKind       `json:"kind"`
	Fields map[string]any `json:"fields"`
}

// Clone returns a deep copy of the node. Field values are copied one
// container level deep, which covers the list-of-maps shapes ontology
// nodes use.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{ID: n.ID, Kind: n.Kind, Fields: make(map[string]any, len(n.Fields))}
	for k, v := range n.Fields {
		cp.Fields[k] = CloneValue(v)
	}
	return cp
}

// CloneValue deep-copies a JSON-shaped field value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = CloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = CloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// StringField returns the named field as a string, or "" if absent or not
// a string.
func (n *Node) StringField(name string) string {
	if n == nil || n.Fields == nil {
		return ""
	}
	s, _ := n.Fields[name].(string)
	return s
}

// ListField returns the named field as a list, or nil if absent or not a
// list.
func (n *Node) ListField(name string) []any {
	if n == nil || n.Fields == nil {
		return nil
	}
	l, _ := n.Fields[name].([]any)
	return l
}
