package models

import "time"

// Branch represents a named, independently mutable line of ontology history.
// Name and Parent never change after creation; HeadCommit advances on every
// commit and on successful merge.
type Branch struct {
	Name        string    `json:"name"`
	Parent      string    `json:"parent,omitempty"` // empty for the root branch
	HeadCommit  string    `json:"head_commit"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Locked      bool      `json:"locked"`
	LockHolder  string    `json:"lock_holder,omitempty"`
	Deleted     bool      `json:"deleted"`
}
