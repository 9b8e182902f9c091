package models

import "time"

// RelationshipType enumerates kinship edge kinds. CHILD is accepted on input
// only; it is canonicalized to a PARENT edge before anything is stored.
type RelationshipType string

const (
	RelationshipParent  RelationshipType = "PARENT"
	RelationshipChild   RelationshipType = "CHILD"
	RelationshipSpouse  RelationshipType = "SPOUSE"
	RelationshipSibling RelationshipType = "SIBLING"
)

// Relationship is a directed kinship edge. PARENT edges are always oriented
// parent -> child. SPOUSE and SIBLING are logically undirected; existence
// checks treat (A,B) and (B,A) as the same edge.
type Relationship struct {
	ID           string           `json:"id" db:"id"`
	GroupID      string           `json:"group_id" db:"group_id"`
	FromPersonID string           `json:"from_person_id" db:"from_person_id"`
	ToPersonID   string           `json:"to_person_id" db:"to_person_id"`
	Type         RelationshipType `json:"type" db:"type"`
	StartDate    *time.Time       `json:"start_date,omitempty" db:"start_date"`
	EndDate      *time.Time       `json:"end_date,omitempty" db:"end_date"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// Other returns the opposite endpoint of the edge, or "" if personID is not an
// endpoint.
func (r *Relationship) Other(personID string) string {
	switch personID {
	case r.FromPersonID:
		return r.ToPersonID
	case r.ToPersonID:
		return r.FromPersonID
	}
	return ""
}

// CreateRelationshipRequest is the request body for creating a relationship.
// PARENT here means "to is a parent of from"; CHILD means "to is a child of
// from". Both are stored as canonical PARENT edges.
type CreateRelationshipRequest struct {
	FromPersonID string           `json:"from_person_id" validate:"required,uuid"`
	ToPersonID   string           `json:"to_person_id" validate:"required,uuid"`
	Type         RelationshipType `json:"type" validate:"required,oneof=PARENT CHILD SPOUSE SIBLING"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
}
