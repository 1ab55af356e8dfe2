package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/ovc/internal/models"
)

func TestValidateState_Clean(t *testing.T) {
	s := state(
		objectType("Customer"),
		objectType("Account"),
		linkType("owns", "Customer", "Account", models.OneToMany,
			inst("i1", "c1", "a1"), inst("i2", "c1", "a2")),
	)
	assert.Empty(t, ValidateState(s))
}

func TestValidateState_OneToOneViolation(t *testing.T) {
	s := state(
		objectType("Customer"),
		objectType("Account"),
		linkType("owns", "Customer", "Account", models.OneToOne,
			inst("i1", "c1", "a1"), inst("i2", "c1", "a2")),
	)

	conflicts := ValidateState(s)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictCardinalityViolation, c.Type)
	assert.True(t, c.Blocking())
	assert.Equal(t, "owns/cardinality", c.Path.String())
	assert.Contains(t, c.Description, "ONE_TO_ONE")
}

func TestValidateState_OneToManyViolation(t *testing.T) {
	s := state(
		objectType("Customer"),
		objectType("Account"),
		linkType("owns", "Customer", "Account", models.OneToMany,
			inst("i1", "c1", "a1"), inst("i2", "c2", "a1")),
	)

	conflicts := ValidateState(s)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictCardinalityViolation, conflicts[0].Type)
}

func TestValidateState_ManyToManyUnbounded(t *testing.T) {
	s := state(
		objectType("Customer"),
		objectType("Account"),
		linkType("owns", "Customer", "Account", models.ManyToMany,
			inst("i1", "c1", "a1"), inst("i2", "c1", "a2"), inst("i3", "c2", "a1")),
	)
	assert.Empty(t, ValidateState(s))
}

func TestValidateState_DanglingReference(t *testing.T) {
	s := state(
		objectType("Customer"),
		linkType("owns", "Customer", "Account", models.OneToMany, inst("i1", "c1", "a1")),
	)

	conflicts := ValidateState(s)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictDanglingReference, c.Type)
	assert.True(t, c.Blocking())
	assert.Equal(t, "owns/target", c.Path.String())
}

func TestValidateState_OrphanIsWarning(t *testing.T) {
	s := state(
		objectType("Customer"),
		objectType("Account"),
		objectType("Archive"),
		linkType("owns", "Customer", "Account", models.OneToMany, inst("i1", "c1", "a1")),
	)

	conflicts := ValidateState(s)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictOrphanedNode, c.Type)
	assert.False(t, c.Blocking())
	assert.Equal(t, "Archive", c.Path.NodeID)
}

func TestValidateState_NoOrphansWithoutLinks(t *testing.T) {
	s := state(objectType("Customer"), objectType("Account"))
	assert.Empty(t, ValidateState(s))
}

func TestValidateState_SortedByPath(t *testing.T) {
	s := state(
		objectType("Zebra"),
		objectType("Apple"),
		linkType("owns", "Missing1", "Missing2", models.ManyToMany),
	)

	conflicts := ValidateState(s)
	require.GreaterOrEqual(t, len(conflicts), 2)
	for i := 1; i < len(conflicts); i++ {
		assert.False(t, conflicts[i].Path.Less(conflicts[i-1].Path))
	}
}
