package core

import (
	"sync"

	"github.com/kilupskalvis/ovc/internal/models"
)

// LockManager provides per-branch exclusive merge locks. Locks are keyed
// by target branch name, so merges into different branches proceed
// concurrently while at most one merge mutates a given target.
type LockManager struct {
	mu   sync.Mutex
	held map[string]string // branch name -> holder token
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]string)}
}

// Acquire takes the lock for a branch on behalf of holder. It does not
// block: a second caller gets a BranchLockedError immediately.
func (m *LockManager) Acquire(branch, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.held[branch]; ok {
		return &models.BranchLockedError{Name: branch, Holder: current}
	}
	m.held[branch] = holder
	return nil
}

// Release drops the lock for a branch if holder still owns it. Releasing
// a lock held by someone else is a no-op.
func (m *LockManager) Release(branch, holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.held[branch]; ok && current == holder {
		delete(m.held, branch)
	}
}

// Holder returns the current lock holder for a branch, if any.
func (m *LockManager) Holder(branch string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder, ok := m.held[branch]
	return holder, ok
}
