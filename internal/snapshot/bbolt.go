package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kilupskalvis/ovc/internal/models"
)

// Bucket names used by the bbolt snapshot store.
var (
	bucketCommits = []byte("commits")
	bucketStates  = []byte("states")
)

// BoltStore is the embedded bbolt-backed snapshot store.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens or creates a bbolt snapshot database at the given path.
func OpenBolt(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &models.StoreUnavailableError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCommits); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketStates)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &models.StoreUnavailableError{Op: "initialize", Err: err}
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// GetCommit retrieves commit metadata by ref.
func (s *BoltStore) GetCommit(ctx context.Context, ref string) (*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var commit *models.Commit

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommits).Get([]byte(ref))
		if data == nil {
			return nil
		}
		commit = &models.Commit{}
		return json.Unmarshal(data, commit)
	})
	if err != nil {
		return nil, &models.StoreUnavailableError{Op: "get commit", Err: err}
	}
	if commit == nil {
		return nil, &models.NotFoundError{Kind: "commit", Ref: ref}
	}
	return commit, nil
}

// StateAt materializes the node state recorded for a commit.
func (s *BoltStore) StateAt(ctx context.Context, ref string) (map[string]*models.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state map[string]*models.Node

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStates).Get([]byte(ref))
		if data == nil {
			return nil
		}
		state = make(map[string]*models.Node)
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, &models.StoreUnavailableError{Op: "read state", Err: err}
	}
	if state == nil {
		return nil, &models.NotFoundError{Kind: "commit", Ref: ref}
	}
	return state, nil
}

// StructuralDiff computes the node-level diff between two commits by
// comparing their materialized states.
func (s *BoltStore) StructuralDiff(ctx context.Context, a, b string) ([]NodeDiff, error) {
	stateA, err := s.StateAt(ctx, a)
	if err != nil {
		return nil, err
	}
	stateB, err := s.StateAt(ctx, b)
	if err != nil {
		return nil, err
	}
	return DiffStates(stateA, stateB), nil
}

// DiffStates compares two materialized states and returns node-level
// differences sorted by node ID.
func DiffStates(before, after map[string]*models.Node) []NodeDiff {
	var diffs []NodeDiff

	for id, b := range before {
		a, exists := after[id]
		if !exists {
			diffs = append(diffs, NodeDiff{NodeID: id, Kind: DiffRemoved, Before: b})
			continue
		}
		if hashNode(b) != hashNode(a) {
			diffs = append(diffs, NodeDiff{NodeID: id, Kind: DiffModified, Before: b, After: a})
		}
	}
	for id, a := range after {
		if _, exists := before[id]; !exists {
			diffs = append(diffs, NodeDiff{NodeID: id, Kind: DiffAdded, After: a})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].NodeID < diffs[j].NodeID
	})
	return diffs
}

// Commit applies the requested changes on top of the parent state and
// persists the new commit and its state in one transaction.
func (s *BoltStore) Commit(ctx context.Context, req CommitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var state map[string]*models.Node
	if req.Parent == "" {
		state = make(map[string]*models.Node)
	} else {
		parentState, err := s.StateAt(ctx, req.Parent)
		if err != nil {
			return "", err
		}
		state = parentState
	}

	for _, change := range req.Changes {
		switch change.Kind {
		case DiffRemoved:
			delete(state, change.NodeID)
		default:
			state[change.NodeID] = change.Node
		}
	}

	now := time.Now().UTC()
	commit := &models.Commit{
		ID:            generateCommitID(req, now),
		ParentID:      req.Parent,
		MergeParentID: req.MergeParent,
		Author:        req.Author,
		Message:       req.Message,
		Timestamp:     now,
		ChangeCount:   len(req.Changes),
	}

	commitData, err := json.Marshal(commit)
	if err != nil {
		return "", fmt.Errorf("marshal commit: %w", err)
	}
	stateData, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCommits).Put([]byte(commit.ID), commitData); err != nil {
			return err
		}
		return tx.Bucket(bucketStates).Put([]byte(commit.ID), stateData)
	})
	if err != nil {
		return "", &models.StoreUnavailableError{Op: "commit", Err: err}
	}

	return commit.ID, nil
}

// ErrHasDescendants is returned when discarding a commit other commits
// descend from.
var ErrHasDescendants = errors.New("commit has descendants and cannot be discarded")

// DiscardCommit removes a tentative commit and its state.
func (s *BoltStore) DiscardCommit(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var domainErr error

	err := s.db.Update(func(tx *bolt.Tx) error {
		commits := tx.Bucket(bucketCommits)
		if commits.Get([]byte(ref)) == nil {
			domainErr = &models.NotFoundError{Kind: "commit", Ref: ref}
			return domainErr
		}

		err := commits.ForEach(func(k, v []byte) error {
			var c models.Commit
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.ParentID == ref || c.MergeParentID == ref {
				domainErr = fmt.Errorf("discard %s: %w", shortID(ref), ErrHasDescendants)
				return domainErr
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := commits.Delete([]byte(ref)); err != nil {
			return err
		}
		return tx.Bucket(bucketStates).Delete([]byte(ref))
	})

	if domainErr != nil {
		return domainErr
	}
	if err != nil {
		return &models.StoreUnavailableError{Op: "discard commit", Err: err}
	}
	return nil
}

// CommonAncestor finds the lowest common ancestor of two commits: collect
// the ancestor set of a, then BFS from b over parent and merge-parent
// edges until a member of that set is reached.
func (s *BoltStore) CommonAncestor(ctx context.Context, a, b string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ancestorsA, err := s.ancestorSet(ctx, a)
	if err != nil {
		return "", err
	}

	queue := []string{b}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == "" || visited[current] {
			continue
		}
		visited[current] = true

		if ancestorsA[current] {
			return current, nil
		}

		commit, err := s.GetCommit(ctx, current)
		if err != nil {
			if models.IsNotFound(err) {
				continue
			}
			return "", err
		}

		if commit.ParentID != "" {
			queue = append(queue, commit.ParentID)
		}
		if commit.MergeParentID != "" {
			queue = append(queue, commit.MergeParentID)
		}
	}

	return "", &models.NoCommonAncestorError{A: a, B: b}
}

// ancestorSet returns ref plus every commit reachable from it.
func (s *BoltStore) ancestorSet(ctx context.Context, ref string) (map[string]bool, error) {
	ancestors := make(map[string]bool)
	queue := []string{ref}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == "" || ancestors[current] {
			continue
		}
		ancestors[current] = true

		commit, err := s.GetCommit(ctx, current)
		if err != nil {
			if models.IsNotFound(err) && current != ref {
				continue
			}
			return nil, err
		}

		if commit.ParentID != "" {
			queue = append(queue, commit.ParentID)
		}
		if commit.MergeParentID != "" {
			queue = append(queue, commit.MergeParentID)
		}
	}

	return ancestors, nil
}

// generateCommitID produces a content-addressable commit ID covering both
// parents and a digest of the change payload.
func generateCommitID(req CommitRequest, timestamp time.Time) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		req.Parent, req.MergeParent, req.Author, req.Message,
		timestamp.Format(time.RFC3339Nano), hashChanges(req.Changes))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// hashChanges computes a deterministic digest over a change set: each
// change is hashed individually, the hashes sorted, then hashed together.
func hashChanges(changes []NodeChange) string {
	if len(changes) == 0 {
		return ""
	}

	hashes := make([]string, len(changes))
	for i, c := range changes {
		data, _ := json.Marshal(c.Node)
		h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", c.Kind, c.NodeID, data)))
		hashes[i] = hex.EncodeToString(h[:])
	}
	sort.Strings(hashes)

	final := sha256.Sum256([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(final[:])
}

// hashNode returns a deterministic hash of a node's canonical JSON form.
func hashNode(n *models.Node) string {
	if n == nil {
		return ""
	}
	data, _ := json.Marshal(n)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
