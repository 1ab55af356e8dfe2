package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
	"github.com/kilupskalvis/ovc/internal/store"
)

func newTestService(t *testing.T, mock *snapshot.Mock) *BranchService {
	return newTestServiceOpts(t, mock, BranchServiceOptions{})
}

func newTestServiceOpts(t *testing.T, snapshots snapshot.Store, opts BranchServiceOptions) *BranchService {
	t.Helper()
	registry, err := store.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	require.NoError(t, registry.Initialize())
	t.Cleanup(func() { registry.Close() })

	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	diff := NewDiffEngine(snapshots, nil)
	resolver := NewConflictResolver(nil)
	merge := NewMergeEngine(snapshots, diff, resolver, opts.Logger)
	return NewBranchService(registry, snapshots, diff, merge, opts)
}

// seedRepo seeds a three-way history and registers main at the target head
// and feature at the source head.
func seedRepo(t *testing.T, svc *BranchService, mock *snapshot.Mock, base, source, target map[string]*models.Node) {
	t.Helper()
	ctx := context.Background()

	baseRef, srcRef, tgtRef := seedThreeWay(mock, base, source, target)
	_, err := svc.CreateRootBranch(ctx, "main", baseRef, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.registry.UpdateHead("main", tgtRef))

	_, err = svc.CreateBranch(ctx, "feature", "main", "alice", "")
	require.NoError(t, err)
	require.NoError(t, svc.registry.UpdateHead("feature", srcRef))
}

func TestBranchService_CreateBranch(t *testing.T) {
	mock := snapshot.NewMock()
	mock.AddCommit(&models.Commit{ID: "c1"}, state(objectType("Order")))

	svc := newTestService(t, mock)
	ctx := context.Background()

	_, err := svc.CreateRootBranch(ctx, "main", "c1", "alice")
	require.NoError(t, err)

	branch, err := svc.CreateBranch(ctx, "feature", "main", "bob", "new ordering")
	require.NoError(t, err)
	assert.Equal(t, "c1", branch.HeadCommit, "child branch starts at parent head")
	assert.Equal(t, "main", branch.Parent)
	assert.Equal(t, "bob", branch.CreatedBy)

	_, err = svc.CreateBranch(ctx, "", "main", "bob", "")
	assert.Error(t, err)

	_, err = svc.CreateBranch(ctx, "other", "missing", "bob", "")
	assert.True(t, models.IsNotFound(err))

	_, err = svc.CreateBranch(ctx, "feature", "main", "bob", "")
	var dup *models.DuplicateBranchError
	assert.ErrorAs(t, err, &dup)
}

func TestBranchService_CreateRootBranch_UnknownCommit(t *testing.T) {
	svc := newTestService(t, snapshot.NewMock())

	_, err := svc.CreateRootBranch(context.Background(), "main", "missing", "alice")
	assert.True(t, models.IsNotFound(err))
}

func TestBranchService_DeleteBranch(t *testing.T) {
	mock := snapshot.NewMock()
	mock.AddCommit(&models.Commit{ID: "c1"}, state(objectType("Order")))

	svc := newTestService(t, mock)
	ctx := context.Background()

	_, err := svc.CreateRootBranch(ctx, "main", "c1", "alice")
	require.NoError(t, err)
	_, err = svc.CreateBranch(ctx, "feature", "main", "alice", "")
	require.NoError(t, err)

	// Protected branch is refused
	err = svc.DeleteBranch(ctx, "main")
	var protected *models.ProtectedBranchError
	require.ErrorAs(t, err, &protected)

	// Locked branch is refused
	require.NoError(t, svc.locks.Acquire("feature", "some-merge"))
	err = svc.DeleteBranch(ctx, "feature")
	var locked *models.BranchLockedError
	require.ErrorAs(t, err, &locked)
	svc.locks.Release("feature", "some-merge")

	require.NoError(t, svc.DeleteBranch(ctx, "feature"))
	_, err = svc.GetBranch(ctx, "feature")
	assert.True(t, models.IsNotFound(err))

	err = svc.DeleteBranch(ctx, "feature")
	assert.True(t, models.IsNotFound(err))
}

func TestBranchService_MergeAdvancesHead(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)
	seedRepo(t, svc, mock,
		state(objectType("Order", prop("id", "string"))),
		state(objectType("Order", prop("id", "string"), prop("status", "string"))),
		state(objectType("Order", prop("id", "string"), prop("currency", "string"))),
	)
	ctx := context.Background()

	result, err := svc.MergeBranches(ctx, "feature", "main", "alice", "")
	require.NoError(t, err)
	require.Equal(t, models.MergeSuccess, result.Status)

	main, err := svc.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, result.MergeCommit, main.HeadCommit)

	// The source branch is untouched
	feature, err := svc.GetBranch(ctx, "feature")
	require.NoError(t, err)
	assert.Equal(t, "c-src", feature.HeadCommit)

	// Lock fully released
	_, held := svc.locks.Holder("main")
	assert.False(t, held)
	assert.False(t, main.Locked)
}

func TestBranchService_MergeIsIdempotent(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)
	seedRepo(t, svc, mock,
		state(objectType("Order", prop("id", "string"))),
		state(objectType("Order", prop("id", "string"), prop("status", "string"))),
		state(objectType("Order", prop("id", "string"), prop("currency", "string"))),
	)
	ctx := context.Background()

	result, err := svc.MergeBranches(ctx, "feature", "main", "alice", "")
	require.NoError(t, err)
	require.Equal(t, models.MergeSuccess, result.Status)

	// Merging again finds nothing new on the source side
	_, err = svc.MergeBranches(ctx, "feature", "main", "alice", "")
	var noChanges *models.NoChangesError
	require.ErrorAs(t, err, &noChanges)

	main, err := svc.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, result.MergeCommit, main.HeadCommit, "head unchanged by no-op merge")
}

func TestBranchService_BlockedMergeLeavesHeadAlone(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)

	invoice := objectType("Invoice")
	invoice.Fields[models.FieldDescription] = "invoices"
	edited := objectType("Invoice")
	edited.Fields[models.FieldDescription] = "billing invoices"

	seedRepo(t, svc, mock,
		state(objectType("Order"), invoice),
		state(objectType("Order"), edited),
		state(objectType("Order")),
	)
	ctx := context.Background()

	result, err := svc.MergeBranches(ctx, "feature", "main", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeBlocked, result.Status)

	main, err := svc.GetBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "c-tgt", main.HeadCommit)
}

func TestBranchService_MergeIntoSelf(t *testing.T) {
	mock := snapshot.NewMock()
	mock.AddCommit(&models.Commit{ID: "c1"}, state(objectType("Order")))

	svc := newTestService(t, mock)
	_, err := svc.CreateRootBranch(context.Background(), "main", "c1", "alice")
	require.NoError(t, err)

	_, err = svc.MergeBranches(context.Background(), "main", "main", "alice", "")
	assert.Error(t, err)
}

func TestBranchService_MergeRefusedWhileLocked(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)
	seedRepo(t, svc, mock,
		state(objectType("Order")),
		state(objectType("Order"), objectType("Invoice")),
		state(objectType("Order"), objectType("Customer")),
	)

	require.NoError(t, svc.locks.Acquire("main", "other-merge"))
	defer svc.locks.Release("main", "other-merge")

	_, err := svc.MergeBranches(context.Background(), "feature", "main", "alice", "")
	var locked *models.BranchLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "main", locked.Name)
	assert.Equal(t, "other-merge", locked.Holder)
}

func TestBranchService_GetDiff(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)
	seedRepo(t, svc, mock,
		state(objectType("Order", prop("id", "string"))),
		state(objectType("Order", prop("id", "string"), prop("status", "string"))),
		state(objectType("Order", prop("id", "string"))),
	)
	ctx := context.Background()

	// Branch names resolve to their heads
	delta, err := svc.GetDiff(ctx, "main", "feature")
	require.NoError(t, err)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, "Order/properties[status]", delta.Changes[0].Path.String())

	// Raw commit refs work too
	delta, err = svc.GetDiff(ctx, "c-base", "c-src")
	require.NoError(t, err)
	assert.Len(t, delta.Changes, 1)

	_, err = svc.GetDiff(ctx, "main", "no-such-ref")
	assert.True(t, models.IsNotFound(err))
}

func TestBranchService_ConcurrentMergesNeverLoseChanges(t *testing.T) {
	// Two merges racing into the same target: the loser must be turned
	// away (and succeed on rerun), never compute from a head the winner
	// already advanced.
	for i := 0; i < 100; i++ {
		mock := snapshot.NewMock()
		svc := newTestService(t, mock)
		ctx := context.Background()

		mock.AddCommit(&models.Commit{ID: "c-base"}, state(objectType("Order")))
		mock.AddCommit(&models.Commit{ID: "c-f1", ParentID: "c-base"},
			state(objectType("Order"), objectType("Invoice")))
		mock.AddCommit(&models.Commit{ID: "c-f2", ParentID: "c-base"},
			state(objectType("Order"), objectType("Wallet")))

		_, err := svc.CreateRootBranch(ctx, "main", "c-base", "alice")
		require.NoError(t, err)
		for name, head := range map[string]string{"feature": "c-f1", "feature2": "c-f2"} {
			_, err = svc.CreateBranch(ctx, name, "main", "alice", "")
			require.NoError(t, err)
			require.NoError(t, svc.registry.UpdateHead(name, head))
		}

		sources := []string{"feature", "feature2"}
		errs := make([]error, len(sources))
		var wg sync.WaitGroup
		for j, src := range sources {
			wg.Add(1)
			go func(j int, src string) {
				defer wg.Done()
				_, errs[j] = svc.MergeBranches(ctx, src, "main", "alice", "")
			}(j, src)
		}
		wg.Wait()

		for j, src := range sources {
			if errs[j] == nil {
				continue
			}
			var locked *models.BranchLockedError
			require.ErrorAs(t, errs[j], &locked, "iteration %d", i)
			_, err := svc.MergeBranches(ctx, src, "main", "alice", "")
			require.NoError(t, err)
		}

		main, err := svc.GetBranch(ctx, "main")
		require.NoError(t, err)
		merged, err := mock.StateAt(ctx, main.HeadCommit)
		require.NoError(t, err)
		assert.Contains(t, merged, "Invoice", "iteration %d lost a merge", i)
		assert.Contains(t, merged, "Wallet", "iteration %d lost a merge", i)
	}
}

// stalledAncestor blocks ancestor resolution until the caller's context
// expires, standing in for slow store I/O.
type stalledAncestor struct {
	snapshot.Store
}

func (s *stalledAncestor) CommonAncestor(ctx context.Context, a, b string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestBranchService_MergeTimeoutInterruptsStoreWork(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestServiceOpts(t, &stalledAncestor{Store: mock}, BranchServiceOptions{
		MergeTimeout: 20 * time.Millisecond,
	})
	seedRepo(t, svc, mock,
		state(objectType("Order")),
		state(objectType("Order"), objectType("Invoice")),
		state(objectType("Order"), objectType("Customer")),
	)

	start := time.Now()
	_, err := svc.MergeBranches(context.Background(), "feature", "main", "alice", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Lock released on the error path
	_, held := svc.locks.Holder("main")
	assert.False(t, held)
}

func TestBranchService_CancelledContextStopsMerge(t *testing.T) {
	mock := snapshot.NewMock()
	svc := newTestService(t, mock)
	seedRepo(t, svc, mock,
		state(objectType("Order")),
		state(objectType("Order"), objectType("Invoice")),
		state(objectType("Order"), objectType("Customer")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.MergeBranches(ctx, "feature", "main", "alice", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBranchService_ListBranches(t *testing.T) {
	mock := snapshot.NewMock()
	mock.AddCommit(&models.Commit{ID: "c1"}, state(objectType("Order")))

	svc := newTestService(t, mock)
	ctx := context.Background()

	_, err := svc.CreateRootBranch(ctx, "main", "c1", "alice")
	require.NoError(t, err)
	_, err = svc.CreateBranch(ctx, "alpha", "main", "alice", "")
	require.NoError(t, err)

	branches, err := svc.ListBranches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, "alpha", branches[0].Name)
	assert.Equal(t, "main", branches[1].Name)
}
