package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kilupskalvis/ovc/internal/models"
)

// CreateBranch inserts a new branch row. Returns a DuplicateBranchError if
// the name is taken (including by a soft-deleted branch).
func (r *Registry) CreateBranch(branch *models.Branch) error {
	exists, err := r.branchRowExists(branch.Name)
	if err != nil {
		return err
	}
	if exists {
		return &models.DuplicateBranchError{Name: branch.Name}
	}

	createdAt := branch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.Exec(`
		INSERT INTO branches (name, parent, head_commit, description, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		branch.Name, branch.Parent, branch.HeadCommit, branch.Description,
		createdAt, branch.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert branch: %w", err)
	}
	return nil
}

// GetBranch retrieves a branch by name. Returns (nil, nil) if the branch
// does not exist or was deleted.
func (r *Registry) GetBranch(name string) (*models.Branch, error) {
	row := r.db.QueryRow(`
		SELECT name, parent, head_commit, description, created_at, created_by, locked, lock_holder, deleted
		FROM branches WHERE name = ? AND deleted = FALSE`, name)

	branch, err := scanBranch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query branch: %w", err)
	}
	return branch, nil
}

// ListBranches returns all non-deleted branches sorted by name.
func (r *Registry) ListBranches() ([]*models.Branch, error) {
	rows, err := r.db.Query(`
		SELECT name, parent, head_commit, description, created_at, created_by, locked, lock_holder, deleted
		FROM branches WHERE deleted = FALSE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, branch)
	}
	return branches, rows.Err()
}

// UpdateHead advances a branch's head commit.
func (r *Registry) UpdateHead(name, commitID string) error {
	res, err := r.db.Exec(`UPDATE branches SET head_commit = ? WHERE name = ? AND deleted = FALSE`,
		commitID, name)
	if err != nil {
		return fmt.Errorf("update branch head: %w", err)
	}
	return requireRow(res, name)
}

// SetLock mirrors in-process merge-lock state onto the branch row.
func (r *Registry) SetLock(name string, locked bool, holder string) error {
	res, err := r.db.Exec(`UPDATE branches SET locked = ?, lock_holder = ? WHERE name = ? AND deleted = FALSE`,
		locked, holder, name)
	if err != nil {
		return fmt.Errorf("update branch lock: %w", err)
	}
	return requireRow(res, name)
}

// DeleteBranch soft-deletes a branch.
func (r *Registry) DeleteBranch(name string) error {
	res, err := r.db.Exec(`UPDATE branches SET deleted = TRUE, locked = FALSE, lock_holder = '' WHERE name = ? AND deleted = FALSE`,
		name)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return requireRow(res, name)
}

// BranchExists checks whether a non-deleted branch with the given name
// exists.
func (r *Registry) BranchExists(name string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM branches WHERE name = ? AND deleted = FALSE`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query branch existence: %w", err)
	}
	return count > 0, nil
}

// branchRowExists checks for any row with the name, deleted or not.
func (r *Registry) branchRowExists(name string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM branches WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query branch existence: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (*models.Branch, error) {
	var branch models.Branch
	var parent, description, createdBy, lockHolder sql.NullString
	err := row.Scan(&branch.Name, &parent, &branch.HeadCommit, &description,
		&branch.CreatedAt, &createdBy, &branch.Locked, &lockHolder, &branch.Deleted)
	if err != nil {
		return nil, err
	}
	branch.Parent = parent.String
	branch.Description = description.String
	branch.CreatedBy = createdBy.String
	branch.LockHolder = lockHolder.String
	return &branch, nil
}

func requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &models.NotFoundError{Kind: "branch", Ref: name}
	}
	return nil
}
