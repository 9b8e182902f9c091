package models

import (
	"encoding/json"
	"time"
)

type WorkspaceStatus string

const (
	WorkspaceEditing   WorkspaceStatus = "EDITING"
	WorkspaceSubmitted WorkspaceStatus = "SUBMITTED"
	WorkspaceMerged    WorkspaceStatus = "MERGED"
	WorkspaceConflict  WorkspaceStatus = "CONFLICT"
)

// Workspace is a user's isolated draft of edits against a group's graph.
// BaseVersion snapshots group.Version at creation time. Only EDITING
// workspaces accept new changesets.
type Workspace struct {
	ID          string          `json:"id" db:"id"`
	GroupID     string          `json:"group_id" db:"group_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	BaseVersion int             `json:"base_version" db:"base_version"`
	Status      WorkspaceStatus `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

type EntityType string

const EntityPerson EntityType = "PERSON"

// ChangeSet is one ordered entry in a workspace's change log. Payload holds a
// PersonPayload for CREATE and a PersonPatch for UPDATE; PreviousPayload holds
// the effective pre-image captured at staging time for UPDATE and DELETE.
type ChangeSet struct {
	ID              string          `json:"id" db:"id"`
	WorkspaceID     string          `json:"workspace_id" db:"workspace_id"`
	ActionType      ActionType      `json:"action_type" db:"action_type"`
	EntityType      EntityType      `json:"entity_type" db:"entity_type"`
	EntityID        string          `json:"entity_id" db:"entity_id"`
	Payload         json.RawMessage `json:"payload,omitempty" db:"payload"`
	PreviousPayload json.RawMessage `json:"previous_payload,omitempty" db:"previous_payload"`
	SequenceNumber  int             `json:"sequence_number" db:"sequence_number"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// CreatePayload decodes the changeset payload as a full person snapshot.
func (c *ChangeSet) CreatePayload() (PersonPayload, error) {
	var payload PersonPayload
	err := json.Unmarshal(c.Payload, &payload)
	return payload, err
}

// PatchPayload decodes the changeset payload as a partial person patch.
func (c *ChangeSet) PatchPayload() (PersonPatch, error) {
	var patch PersonPatch
	err := json.Unmarshal(c.Payload, &patch)
	return patch, err
}

// CommitRequest is the request body for committing a workspace for review.
type CommitRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
}
