package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilupskalvis/ovc/internal/models"
)

// Mock is an in-memory Store implementation for testing.
type Mock struct {
	mu sync.Mutex

	Commits map[string]*models.Commit
	States  map[string]map[string]*models.Node

	// Err, when set, is returned by every method.
	Err error
	// FailTimes makes the next N calls fail with a StoreUnavailableError
	// before succeeding, to exercise the retry boundary.
	FailTimes int
	// Calls counts every method invocation.
	Calls int

	seq int
}

var _ Store = (*Mock)(nil)

// NewMock creates an empty mock snapshot store.
func NewMock() *Mock {
	return &Mock{
		Commits: make(map[string]*models.Commit),
		States:  make(map[string]map[string]*models.Node),
	}
}

// AddCommit seeds a commit and its state directly.
func (m *Mock) AddCommit(commit *models.Commit, state map[string]*models.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits[commit.ID] = commit
	m.States[commit.ID] = cloneState(state)
}

// gate applies the Err and FailTimes knobs.
func (m *Mock) gate(ctx context.Context, op string) error {
	m.Calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Err != nil {
		return m.Err
	}
	if m.FailTimes > 0 {
		m.FailTimes--
		return &models.StoreUnavailableError{Op: op, Err: fmt.Errorf("injected failure")}
	}
	return nil
}

func (m *Mock) GetCommit(ctx context.Context, ref string) (*models.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(ctx, "get commit"); err != nil {
		return nil, err
	}
	commit, ok := m.Commits[ref]
	if !ok {
		return nil, &models.NotFoundError{Kind: "commit", Ref: ref}
	}
	return commit, nil
}

func (m *Mock) StateAt(ctx context.Context, ref string) (map[string]*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(ctx, "read state"); err != nil {
		return nil, err
	}
	state, ok := m.States[ref]
	if !ok {
		return nil, &models.NotFoundError{Kind: "commit", Ref: ref}
	}
	return cloneState(state), nil
}

func (m *Mock) StructuralDiff(ctx context.Context, a, b string) ([]NodeDiff, error) {
	stateA, err := m.StateAt(ctx, a)
	if err != nil {
		return nil, err
	}
	stateB, err := m.StateAt(ctx, b)
	if err != nil {
		return nil, err
	}
	return DiffStates(stateA, stateB), nil
}

func (m *Mock) Commit(ctx context.Context, req CommitRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(ctx, "commit"); err != nil {
		return "", err
	}

	var state map[string]*models.Node
	if req.Parent == "" {
		state = make(map[string]*models.Node)
	} else {
		parent, ok := m.States[req.Parent]
		if !ok {
			return "", &models.NotFoundError{Kind: "commit", Ref: req.Parent}
		}
		state = cloneState(parent)
	}

	for _, change := range req.Changes {
		switch change.Kind {
		case DiffRemoved:
			delete(state, change.NodeID)
		default:
			state[change.NodeID] = change.Node
		}
	}

	m.seq++
	id := fmt.Sprintf("mock-commit-%03d", m.seq)
	m.Commits[id] = &models.Commit{
		ID:            id,
		ParentID:      req.Parent,
		MergeParentID: req.MergeParent,
		Author:        req.Author,
		Message:       req.Message,
		Timestamp:     time.Now().UTC(),
		ChangeCount:   len(req.Changes),
	}
	m.States[id] = state
	return id, nil
}

func (m *Mock) DiscardCommit(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(ctx, "discard commit"); err != nil {
		return err
	}
	if _, ok := m.Commits[ref]; !ok {
		return &models.NotFoundError{Kind: "commit", Ref: ref}
	}
	delete(m.Commits, ref)
	delete(m.States, ref)
	return nil
}

func (m *Mock) CommonAncestor(ctx context.Context, a, b string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(ctx, "common ancestor"); err != nil {
		return "", err
	}

	ancestors := make(map[string]bool)
	queue := []string{a}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == "" || ancestors[current] {
			continue
		}
		ancestors[current] = true
		if c, ok := m.Commits[current]; ok {
			queue = append(queue, c.ParentID, c.MergeParentID)
		}
	}

	queue = []string{b}
	visited := make(map[string]bool)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == "" || visited[current] {
			continue
		}
		visited[current] = true
		if ancestors[current] {
			return current, nil
		}
		if c, ok := m.Commits[current]; ok {
			queue = append(queue, c.ParentID, c.MergeParentID)
		}
	}

	return "", &models.NoCommonAncestorError{A: a, B: b}
}

func cloneState(state map[string]*models.Node) map[string]*models.Node {
	out := make(map[string]*models.Node, len(state))
	for k, v := range state {
		out[k] = v.Clone()
	}
	return out
}
