package core

import (
	"fmt"
	"sort"

	"github.com/kilupskalvis/ovc/internal/models"
)

// ValidateState re-checks domain rules on a fully merged state, catching
// compound violations that are invisible in either delta alone. Returned
// conflicts are synthetic: cardinality and reference violations are
// manual-required (blocking), orphaned nodes are auto-merged warnings.
func ValidateState(state map[string]*models.Node) []*models.Conflict {
	var conflicts []*models.Conflict

	conflicts = append(conflicts, checkCardinality(state)...)
	conflicts = append(conflicts, checkReferences(state)...)
	conflicts = append(conflicts, checkOrphans(state)...)

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Path.Less(conflicts[j].Path)
	})
	return conflicts
}

// checkCardinality verifies that each link type's instances respect its
// declared cardinality.
func checkCardinality(state map[string]*models.Node) []*models.Conflict {
	var conflicts []*models.Conflict

	for _, node := range state {
		if node.Kind != models.KindLinkType {
			continue
		}
		cardinality := node.StringField(models.FieldCardinality)
		instances := node.ListField(models.FieldInstances)
		if len(instances) < 2 {
			continue
		}

		switch cardinality {
		case models.OneToOne:
			if key, n := maxFanOut(instances, "from"); n > 1 {
				conflicts = append(conflicts, cardinalityConflict(node, cardinality, key, n))
			}
		case models.OneToMany:
			if key, n := maxFanOut(instances, "to"); n > 1 {
				conflicts = append(conflicts, cardinalityConflict(node, cardinality, key, n))
			}
		}
	}
	return conflicts
}

// maxFanOut groups instances by an endpoint field and returns the endpoint
// with the most links. Instances lacking the field group together under
// the empty key, so a plain instance list still counts.
func maxFanOut(instances []any, endpoint string) (string, int) {
	counts := make(map[string]int)
	for _, inst := range instances {
		key := ""
		if obj, ok := inst.(map[string]any); ok {
			key, _ = obj[endpoint].(string)
		}
		counts[key]++
	}

	var maxKey string
	var maxN int
	for key, n := range counts {
		if n > maxN || (n == maxN && key < maxKey) {
			maxKey, maxN = key, n
		}
	}
	return maxKey, maxN
}

func cardinalityConflict(node *models.Node, cardinality, endpoint string, count int) *models.Conflict {
	desc := fmt.Sprintf("link type '%s' declares %s but has %d instances", node.ID, cardinality, count)
	if endpoint != "" {
		desc = fmt.Sprintf("link type '%s' declares %s but endpoint '%s' carries %d instances",
			node.ID, cardinality, endpoint, count)
	}
	return &models.Conflict{
		Path:        models.ChangePath{NodeID: node.ID, Field: models.FieldCardinality},
		Type:        models.ConflictCardinalityViolation,
		Resolution:  models.ResolutionManualRequired,
		Description: desc,
	}
}

// checkReferences verifies that every link type's source and target name
// existing nodes.
func checkReferences(state map[string]*models.Node) []*models.Conflict {
	var conflicts []*models.Conflict

	for _, node := range state {
		if node.Kind != models.KindLinkType {
			continue
		}
		for _, field := range []string{models.FieldSource, models.FieldTarget} {
			ref := node.StringField(field)
			if ref == "" {
				continue
			}
			if _, exists := state[ref]; !exists {
				conflicts = append(conflicts, &models.Conflict{
					Path:        models.ChangePath{NodeID: node.ID, Field: field},
					Type:        models.ConflictDanglingReference,
					Resolution:  models.ResolutionManualRequired,
					Description: fmt.Sprintf("link type '%s' %s references missing node '%s'", node.ID, field, ref),
				})
			}
		}
	}
	return conflicts
}

// checkOrphans reports object types no link type touches, once the graph
// has link types at all. Orphans are warnings, not blockers.
func checkOrphans(state map[string]*models.Node) []*models.Conflict {
	referenced := make(map[string]bool)
	hasLinks := false
	for _, node := range state {
		if node.Kind != models.KindLinkType {
			continue
		}
		hasLinks = true
		referenced[node.StringField(models.FieldSource)] = true
		referenced[node.StringField(models.FieldTarget)] = true
	}
	if !hasLinks {
		return nil
	}

	var conflicts []*models.Conflict
	for _, node := range state {
		if node.Kind != models.KindObjectType || referenced[node.ID] {
			continue
		}
		conflicts = append(conflicts, &models.Conflict{
			Path:        models.ChangePath{NodeID: node.ID},
			Type:        models.ConflictOrphanedNode,
			Resolution:  models.ResolutionAutoMerged,
			Description: fmt.Sprintf("object type '%s' is unreachable: no link type references it", node.ID),
		})
	}
	return conflicts
}
