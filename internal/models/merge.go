package models

import "time"

// MergeStatus is the overall outcome of a merge attempt.
type MergeStatus string

const (
	// MergeSuccess: the merge commit exists and the target head advanced.
	MergeSuccess MergeStatus = "success"
	// MergeBlocked: manual-required conflicts remain; the store was not
	// mutated (or the tentative commit was discarded).
	MergeBlocked MergeStatus = "blocked"
	// MergePartial: the tentative commit could not be cleanly discarded
	// after a validation failure; operator attention needed.
	MergePartial MergeStatus = "partial"
)

// MergeResult is the outcome of a merge attempt. Domain-level blocking is
// reported here as data, never as an error: Status is MergeSuccess exactly
// when MergeCommit is set and Conflicts contains no manual-required entries.
type MergeResult struct {
	MergeCommit  string      `json:"merge_commit,omitempty"`
	Conflicts    []*Conflict `json:"conflicts,omitempty"`
	Status       MergeStatus `json:"status"`
	SourceBranch string      `json:"source_branch"`
	TargetBranch string      `json:"target_branch"`
	Author       string      `json:"author,omitempty"`
	Message      string      `json:"message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	FastForward  bool        `json:"fast_forward,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// Blocked reports whether the merge was stopped by manual-required
// conflicts.
func (r *MergeResult) Blocked() bool {
	return r.Status == MergeBlocked
}

// BlockingConflicts returns the subset of conflicts requiring manual
// resolution.
func (r *MergeResult) BlockingConflicts() []*Conflict {
	var out []*Conflict
	for _, c := range r.Conflicts {
		if c.Blocking() {
			out = append(out, c)
		}
	}
	return out
}
