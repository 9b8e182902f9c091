package models

import "time"

type MergeStatus string

const (
	MergePending  MergeStatus = "PENDING"
	MergeApproved MergeStatus = "APPROVED"
	MergeRejected MergeStatus = "REJECTED"
	MergeConflict MergeStatus = "CONFLICT"
)

// MergeRequest is the review handle produced by committing a workspace.
type MergeRequest struct {
	ID            string      `json:"id" db:"id"`
	WorkspaceID   string      `json:"workspace_id" db:"workspace_id"`
	GroupID       string      `json:"group_id" db:"group_id"`
	Title         string      `json:"title" db:"title"`
	Description   *string     `json:"description,omitempty" db:"description"`
	Status        MergeStatus `json:"status" db:"status"`
	CreatedBy     string      `json:"created_by" db:"created_by"`
	ReviewedBy    *string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewComment *string     `json:"review_comment,omitempty" db:"review_comment"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Conflict reports one changeset whose target moved underneath the workspace.
// Conflicts are data, not errors; approve returns them without failing.
type Conflict struct {
	ChangeSetID    string `json:"changeset_id"`
	PersonID       string `json:"person_id"`
	BaseVersion    int    `json:"base_version"`
	CurrentVersion int    `json:"current_version"`
	Message        string `json:"message"`
}

// MergeResult is the outcome of approving a merge request.
type MergeResult struct {
	Status       MergeStatus `json:"status"`
	Conflicts    []Conflict  `json:"conflicts,omitempty"`
	GroupVersion int         `json:"group_version"`
}

// RejectRequest is the request body for rejecting a merge request.
type RejectRequest struct {
	Comment string `json:"comment" validate:"required"`
}
