package models

import "time"

// Lineage labels a person's relation to a focus person's bloodlines.
type Lineage string

const (
	LineageSelf    Lineage = "SELF"
	LineageFather  Lineage = "FATHER_LINE"
	LineageMother  Lineage = "MOTHER_LINE"
	LineageUnknown Lineage = "UNKNOWN"
)

// TreeNode is a laid-out person in a tree view. Generation is signed: 0 at the
// focus, positive toward descendants, negative toward ancestors.
type TreeNode struct {
	PersonID   string     `json:"person_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Gender     Gender     `json:"gender"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	DeathDate  *time.Time `json:"death_date,omitempty"`
	Generation int        `json:"generation"`
	Lineage    Lineage    `json:"lineage"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
}

// TreeEdge is a relationship whose both endpoints survived the depth cutoff.
type TreeEdge struct {
	ID           string           `json:"id"`
	FromPersonID string           `json:"from_person_id"`
	ToPersonID   string           `json:"to_person_id"`
	Type         RelationshipType `json:"type"`
}

// LineageMember is one labeled person in a lineage classification.
type LineageMember struct {
	PersonID  string  `json:"person_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Lineage   Lineage `json:"lineage"`
}

// LineageView classifies a whole group against a focus person's bloodlines.
type LineageView struct {
	GroupID       string          `json:"group_id"`
	FocusPersonID string          `json:"focus_person_id"`
	Members       []LineageMember `json:"members"`
}

// TreeView is the renderable subgraph around a focus person.
type TreeView struct {
	GroupID       string     `json:"group_id"`
	FocusPersonID string     `json:"focus_person_id"`
	Depth         int        `json:"depth"`
	Nodes         []TreeNode `json:"nodes"`
	Edges         []TreeEdge `json:"edges"`
}
