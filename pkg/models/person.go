package models

import "time"

// Gender of a person. UNKNOWN is valid; lineage classification only keys off
// MALE and FEMALE.
type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderUnknown Gender = "UNKNOWN"
)

// Person is a member of a group's family graph. Version is a monotonically
// increasing counter bumped by the storage layer on every update and used for
// optimistic concurrency during merges.
type Person struct {
	ID              string     `json:"id" db:"id"`
	GroupID         string     `json:"group_id" db:"group_id"`
	FirstName       string     `json:"first_name" db:"first_name"`
	LastName        string     `json:"last_name" db:"last_name"`
	Gender          Gender     `json:"gender" db:"gender"`
	BirthDate       *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	DeathDate       *time.Time `json:"death_date,omitempty" db:"death_date"`
	BirthPlace      *string    `json:"birth_place,omitempty" db:"birth_place"`
	CurrentSpouseID *string    `json:"current_spouse_id,omitempty" db:"current_spouse_id"`
	CreatedBy       string     `json:"created_by" db:"created_by"`
	Version         int        `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// PersonPayload is the full field snapshot carried by CREATE changesets and
// previous-state captures.
type PersonPayload struct {
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Gender          Gender     `json:"gender"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	DeathDate       *time.Time `json:"death_date,omitempty"`
	BirthPlace      *string    `json:"birth_place,omitempty"`
	CurrentSpouseID *string    `json:"current_spouse_id,omitempty"`
}

// PersonPatch carries partial updates. A nil field means "leave unchanged".
type PersonPatch struct {
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	Gender          *Gender    `json:"gender,omitempty"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	DeathDate       *time.Time `json:"death_date,omitempty"`
	BirthPlace      *string    `json:"birth_place,omitempty"`
	CurrentSpouseID *string    `json:"current_spouse_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PersonPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Gender == nil &&
		p.BirthDate == nil && p.DeathDate == nil && p.BirthPlace == nil &&
		p.CurrentSpouseID == nil
}

// Apply overlays the patch onto a person, leaving nil fields untouched.
func (p PersonPatch) Apply(person *Person) {
	if p.FirstName != nil {
		person.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		person.LastName = *p.LastName
	}
	if p.Gender != nil {
		person.Gender = *p.Gender
	}
	if p.BirthDate != nil {
		person.BirthDate = p.BirthDate
	}
	if p.DeathDate != nil {
		person.DeathDate = p.DeathDate
	}
	if p.BirthPlace != nil {
		person.BirthPlace = p.BirthPlace
	}
	if p.CurrentSpouseID != nil {
		person.CurrentSpouseID = p.CurrentSpouseID
	}
}

// Payload captures the person's mutable fields as a full snapshot.
func (p *Person) Payload() PersonPayload {
	return PersonPayload{
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Gender:          p.Gender,
		BirthDate:       p.BirthDate,
		DeathDate:       p.DeathDate,
		BirthPlace:      p.BirthPlace,
		CurrentSpouseID: p.CurrentSpouseID,
	}
}

// ApplyPayload overwrites the person's mutable fields from a full snapshot.
func (p *Person) ApplyPayload(payload PersonPayload) {
	p.FirstName = payload.FirstName
	p.LastName = payload.LastName
	p.Gender = payload.Gender
	p.BirthDate = payload.BirthDate
	p.DeathDate = payload.DeathDate
	p.BirthPlace = payload.BirthPlace
	p.CurrentSpouseID = payload.CurrentSpouseID
}

// CreatePersonRequest is the request body for creating a person directly.
type CreatePersonRequest struct {
	GroupID         string     `json:"group_id" validate:"required,uuid"`
	FirstName       string     `json:"first_name" validate:"required"`
	LastName        string     `json:"last_name"`
	Gender          Gender     `json:"gender" validate:"required,oneof=MALE FEMALE UNKNOWN"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	DeathDate       *time.Time `json:"death_date,omitempty"`
	BirthPlace      *string    `json:"birth_place,omitempty"`
	CurrentSpouseID *string    `json:"current_spouse_id,omitempty"`
}

// StagePersonRequest is the request body for staging a person creation in a
// workspace. The group comes from the workspace, not the body.
type StagePersonRequest struct {
	FirstName       string     `json:"first_name" validate:"required"`
	LastName        string     `json:"last_name"`
	Gender          Gender     `json:"gender" validate:"required,oneof=MALE FEMALE UNKNOWN"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	DeathDate       *time.Time `json:"death_date,omitempty"`
	BirthPlace      *string    `json:"birth_place,omitempty"`
	CurrentSpouseID *string    `json:"current_spouse_id,omitempty"`
}

// PersonRelations summarizes a person's immediate family.
type PersonRelations struct {
	Person   Person   `json:"person"`
	Parents  []Person `json:"parents"`
	Children []Person `json:"children"`
	Spouses  []Person `json:"spouses"`
	Siblings []Person `json:"siblings"`
}
