package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
	"github.com/kilupskalvis/ovc/internal/store"
)

// fullStack wires the service against a real bbolt snapshot store and a
// real SQLite registry, with the retry boundary in between, the way the
// CLI assembles it.
type fullStack struct {
	snapshots *snapshot.BoltStore
	registry  *store.Registry
	service   *BranchService
}

func newFullStack(t *testing.T) *fullStack {
	t.Helper()
	dir := t.TempDir()

	snapshots, err := snapshot.OpenBolt(filepath.Join(dir, "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { snapshots.Close() })

	registry, err := store.Open(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	require.NoError(t, registry.Initialize())
	t.Cleanup(func() { registry.Close() })

	retrying := NewRetryingStore(snapshots, nil)
	diff := NewDiffEngine(retrying, nil)
	resolver := NewConflictResolver(nil)
	merge := NewMergeEngine(retrying, diff, resolver, discardLogger())
	service := NewBranchService(registry, retrying, diff, merge, BranchServiceOptions{Logger: discardLogger()})

	return &fullStack{snapshots: snapshots, registry: registry, service: service}
}

// commitOn advances a branch with a set of node changes.
func (fs *fullStack) commitOn(t *testing.T, branch, author, message string, changes ...snapshot.NodeChange) string {
	t.Helper()
	ctx := context.Background()

	b, err := fs.service.GetBranch(ctx, branch)
	require.NoError(t, err)

	ref, err := fs.snapshots.Commit(ctx, snapshot.CommitRequest{
		Parent:  b.HeadCommit,
		Author:  author,
		Message: message,
		Changes: changes,
	})
	require.NoError(t, err)
	require.NoError(t, fs.registry.UpdateHead(branch, ref))
	return ref
}

func addNode(node *models.Node) snapshot.NodeChange {
	return snapshot.NodeChange{NodeID: node.ID, Kind: snapshot.DiffAdded, Node: node}
}

func modNode(node *models.Node) snapshot.NodeChange {
	return snapshot.NodeChange{NodeID: node.ID, Kind: snapshot.DiffModified, Node: node}
}

func TestEndToEnd_BranchMergeLifecycle(t *testing.T) {
	fs := newFullStack(t)
	ctx := context.Background()

	root, err := fs.snapshots.Commit(ctx, snapshot.CommitRequest{Author: "alice", Message: "Initial commit"})
	require.NoError(t, err)
	_, err = fs.service.CreateRootBranch(ctx, "main", root, "alice")
	require.NoError(t, err)

	fs.commitOn(t, "main", "alice", "add order type",
		addNode(objectType("Order", prop("id", "string"), prop("total", "number"))))

	_, err = fs.service.CreateBranch(ctx, "feature", "main", "bob", "order status work")
	require.NoError(t, err)

	// Diverge both sides on different properties
	fs.commitOn(t, "feature", "bob", "add status",
		modNode(objectType("Order", prop("id", "string"), prop("total", "number"), prop("status", "string"))))
	fs.commitOn(t, "main", "alice", "add currency",
		modNode(objectType("Order", prop("id", "string"), prop("total", "number"), prop("currency", "string"))))

	result, err := fs.service.MergeBranches(ctx, "feature", "main", "carol", "")
	require.NoError(t, err)
	require.Equal(t, models.MergeSuccess, result.Status)
	assert.False(t, result.FastForward)
	assert.Empty(t, result.BlockingConflicts())

	main, err := fs.service.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, result.MergeCommit, main.HeadCommit)

	mergedState, err := fs.snapshots.StateAt(ctx, main.HeadCommit)
	require.NoError(t, err)
	props := mergedState["Order"].ListField(models.FieldProperties)
	assert.Len(t, props, 4)

	commit, err := fs.snapshots.GetCommit(ctx, main.HeadCommit)
	require.NoError(t, err)
	assert.True(t, commit.IsMergeCommit())
	assert.Equal(t, "carol", commit.Author)
}

func TestEndToEnd_FastForwardThenNoChanges(t *testing.T) {
	fs := newFullStack(t)
	ctx := context.Background()

	root, err := fs.snapshots.Commit(ctx, snapshot.CommitRequest{Author: "alice", Message: "Initial commit"})
	require.NoError(t, err)
	_, err = fs.service.CreateRootBranch(ctx, "main", root, "alice")
	require.NoError(t, err)
	_, err = fs.service.CreateBranch(ctx, "feature", "main", "bob", "")
	require.NoError(t, err)

	featureHead := fs.commitOn(t, "feature", "bob", "add customer", addNode(objectType("Customer")))

	// Target never diverged: fast-forward without a merge commit
	result, err := fs.service.MergeBranches(ctx, "feature", "main", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.True(t, result.FastForward)
	assert.Equal(t, featureHead, result.MergeCommit)

	main, err := fs.service.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, featureHead, main.HeadCommit)

	// Repeating the merge is a no-op, not a new commit
	_, err = fs.service.MergeBranches(ctx, "feature", "main", "bob", "")
	var noChanges *models.NoChangesError
	require.ErrorAs(t, err, &noChanges)
}

func TestEndToEnd_BlockedMergeRollsBack(t *testing.T) {
	fs := newFullStack(t)
	ctx := context.Background()

	root, err := fs.snapshots.Commit(ctx, snapshot.CommitRequest{Author: "alice", Message: "Initial commit"})
	require.NoError(t, err)
	_, err = fs.service.CreateRootBranch(ctx, "main", root, "alice")
	require.NoError(t, err)

	fs.commitOn(t, "main", "alice", "seed graph",
		addNode(objectType("Customer")),
		addNode(objectType("Account")),
		addNode(linkType("owns", "Customer", "Account", models.OneToOne)))

	_, err = fs.service.CreateBranch(ctx, "feature", "main", "bob", "")
	require.NoError(t, err)

	// Each side links the same customer to a different account. Only the
	// combined graph breaks ONE_TO_ONE, so detection happens post-merge.
	fs.commitOn(t, "feature", "bob", "link c1 to a1",
		modNode(linkType("owns", "Customer", "Account", models.OneToOne, inst("i1", "c1", "a1"))))
	fs.commitOn(t, "main", "alice", "link c1 to a2",
		modNode(linkType("owns", "Customer", "Account", models.OneToOne, inst("i2", "c1", "a2"))))

	mainBefore, err := fs.service.GetBranch(ctx, "main")
	require.NoError(t, err)

	result, err := fs.service.MergeBranches(ctx, "feature", "main", "carol", "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeBlocked, result.Status)
	assert.Empty(t, result.MergeCommit)
	require.NotEmpty(t, result.BlockingConflicts())
	assert.Equal(t, models.ConflictCardinalityViolation, result.BlockingConflicts()[0].Type)

	// Head untouched and the tentative commit gone from the store
	mainAfter, err := fs.service.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, mainBefore.HeadCommit, mainAfter.HeadCommit)
}

func TestEndToEnd_DiffAcrossBranches(t *testing.T) {
	fs := newFullStack(t)
	ctx := context.Background()

	root, err := fs.snapshots.Commit(ctx, snapshot.CommitRequest{Author: "alice", Message: "Initial commit"})
	require.NoError(t, err)
	_, err = fs.service.CreateRootBranch(ctx, "main", root, "alice")
	require.NoError(t, err)

	fs.commitOn(t, "main", "alice", "add order", addNode(objectType("Order", prop("id", "string"))))
	_, err = fs.service.CreateBranch(ctx, "feature", "main", "bob", "")
	require.NoError(t, err)
	fs.commitOn(t, "feature", "bob", "extend order",
		modNode(objectType("Order", prop("id", "string"), prop("status", "string"))))

	delta, err := fs.service.GetDiff(ctx, "main", "feature")
	require.NoError(t, err)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, "Order/properties[status]", delta.Changes[0].Path.String())
	assert.Equal(t, models.ChangeAdded, delta.Changes[0].Kind)
}
