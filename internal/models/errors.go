package models

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a branch, commit, or node that does not exist.
// Caller-correctable; never retried.
type NotFoundError struct {
	Kind string // "branch", "commit", "node"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Ref)
}

// DuplicateBranchError indicates a branch name that is already taken.
type DuplicateBranchError struct {
	Name string
}

func (e *DuplicateBranchError) Error() string {
	return fmt.Sprintf("branch '%s' already exists", e.Name)
}

// BranchLockedError indicates a branch with a merge in flight.
type BranchLockedError struct {
	Name   string
	Holder string
}

func (e *BranchLockedError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("branch '%s' is locked by merge %s", e.Name, e.Holder)
	}
	return fmt.Sprintf("branch '%s' is locked", e.Name)
}

// ProtectedBranchError indicates an attempt to delete a protected branch.
type ProtectedBranchError struct {
	Name string
}

func (e *ProtectedBranchError) Error() string {
	return fmt.Sprintf("branch '%s' is protected and cannot be deleted", e.Name)
}

// NoCommonAncestorError indicates two commits with unrelated histories.
type NoCommonAncestorError struct {
	A, B string
}

func (e *NoCommonAncestorError) Error() string {
	return fmt.Sprintf("no common ancestor between %s and %s", shortRef(e.A), shortRef(e.B))
}

// NoChangesError indicates a merge with nothing to merge on either side.
type NoChangesError struct {
	Source, Target string
}

func (e *NoChangesError) Error() string {
	return fmt.Sprintf("nothing to merge from '%s' into '%s'", e.Source, e.Target)
}

// StoreUnavailableError wraps a transient snapshot-store failure. These are
// the only errors the retry boundary will retry.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("snapshot store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func shortRef(ref string) string {
	if len(ref) > 7 {
		return ref[:7]
	}
	return ref
}
