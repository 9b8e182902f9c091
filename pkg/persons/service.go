// Package persons implements direct person CRUD against the live graph, used
// outside the workspace drafting flow.
package persons

import (
	"context"
	"database/sql"
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

type PersonStore interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Person, error)
	SearchByName(ctx context.Context, groupID, name string) ([]models.Person, error)
	Create(ctx context.Context, p *models.Person) (*models.Person, error)
	Update(ctx context.Context, p *models.Person) (*models.Person, error)
	Delete(ctx context.Context, id string) error
}

type RelationshipStore interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Relationship, error)
	DeleteForPerson(ctx context.Context, groupID, personID string) error
}

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Notifier receives person lifecycle events after the write is durable.
type Notifier interface {
	PersonCreated(ctx context.Context, p *models.Person)
	PersonUpdated(ctx context.Context, p *models.Person)
	PersonDeleted(ctx context.Context, p *models.Person)
}

type Service struct {
	logger        ectologger.Logger
	db            TxBeginner
	persons       PersonStore
	relationships RelationshipStore
	members       MembershipStore
	notifier      Notifier
}

func NewService(
	logger ectologger.Logger,
	db TxBeginner,
	persons PersonStore,
	relationships RelationshipStore,
	members MembershipStore,
	notifier Notifier,
) *Service {
	return &Service{
		logger:        logger,
		db:            db,
		persons:       persons,
		relationships: relationships,
		members:       members,
		notifier:      notifier,
	}
}

// Create inserts a person at version 0.
func (s *Service) Create(ctx context.Context, userID string, req *models.CreatePersonRequest) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Create")
	defer span.End()

	if err := s.requireMember(ctx, req.GroupID, userID); err != nil {
		return nil, err
	}

	person := &models.Person{
		ID:              uuid.New().String(),
		GroupID:         req.GroupID,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Gender:          req.Gender,
		BirthDate:       req.BirthDate,
		DeathDate:       req.DeathDate,
		BirthPlace:      req.BirthPlace,
		CurrentSpouseID: req.CurrentSpouseID,
		CreatedBy:       userID,
		Version:         0,
	}
	created, err := s.persons.Create(ctx, person)
	if err != nil {
		return nil, err
	}

	s.notifier.PersonCreated(ctx, created)
	return created, nil
}

// Get returns a person visible to the caller.
func (s *Service) Get(ctx context.Context, personID, userID string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Get")
	defer span.End()

	person, err := s.persons.GetByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, person.GroupID, userID); err != nil {
		return nil, err
	}
	return person, nil
}

// List returns every person in the group.
func (s *Service) List(ctx context.Context, groupID, userID string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.List")
	defer span.End()

	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.persons.ListByGroup(ctx, groupID)
}

// Search finds persons by first or last name, case-insensitively.
func (s *Service) Search(ctx context.Context, groupID, userID, name string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Search")
	defer span.End()

	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.persons.SearchByName(ctx, groupID, name)
}

// Update applies a partial patch. The storage layer bumps the person's
// version on every save.
func (s *Service) Update(ctx context.Context, personID, userID string, patch models.PersonPatch) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Update")
	defer span.End()

	if patch.IsEmpty() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "update must change at least one field")
	}

	person, err := s.persons.GetByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, person.GroupID, userID); err != nil {
		return nil, err
	}

	patch.Apply(person)
	updated, err := s.persons.Update(ctx, person)
	if err != nil {
		return nil, err
	}

	s.notifier.PersonUpdated(ctx, updated)
	return updated, nil
}

// Delete removes a person together with every relationship edge touching
// them, in one transaction.
func (s *Service) Delete(ctx context.Context, personID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Delete")
	defer span.End()

	person, err := s.persons.GetByID(ctx, personID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, person.GroupID, userID); err != nil {
		return err
	}

	ctx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.relationships.DeleteForPerson(ctx, person.GroupID, personID); err != nil {
		return err
	}
	if err := s.persons.Delete(ctx, personID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notifier.PersonDeleted(ctx, person)
	return nil
}

// Relations summarizes a person's immediate family. Siblings cover explicit
// SIBLING edges plus anyone sharing a parent.
func (s *Service) Relations(ctx context.Context, personID, userID string) (*models.PersonRelations, error) {
	ctx, span := tracing.StartSpan(ctx, "persons.Service.Relations")
	defer span.End()

	person, err := s.persons.GetByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, person.GroupID, userID); err != nil {
		return nil, err
	}

	people, err := s.persons.ListByGroup(ctx, person.GroupID)
	if err != nil {
		return nil, err
	}
	edges, err := s.relationships.ListByGroup(ctx, person.GroupID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Person, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}

	parents := make(map[string]bool)
	children := make(map[string]bool)
	spouses := make(map[string]bool)
	siblings := make(map[string]bool)

	for _, e := range edges {
		switch e.Type {
		case models.RelationshipParent:
			if e.ToPersonID == personID {
				parents[e.FromPersonID] = true
			}
			if e.FromPersonID == personID {
				children[e.ToPersonID] = true
			}
		case models.RelationshipSpouse:
			if other := e.Other(personID); other != "" {
				spouses[other] = true
			}
		case models.RelationshipSibling:
			if other := e.Other(personID); other != "" {
				siblings[other] = true
			}
		}
	}

	// derive siblings through shared parents
	for _, e := range edges {
		if e.Type != models.RelationshipParent || !parents[e.FromPersonID] {
			continue
		}
		if e.ToPersonID != personID {
			siblings[e.ToPersonID] = true
		}
	}

	result := &models.PersonRelations{Person: *person}
	result.Parents = collect(byID, parents)
	result.Children = collect(byID, children)
	result.Spouses = collect(byID, spouses)
	result.Siblings = collect(byID, siblings)
	return result, nil
}

func (s *Service) requireMember(ctx context.Context, groupID, userID string) error {
	isMember, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return httperror.NewHTTPError(http.StatusForbidden, "not a member of this group")
	}
	return nil
}

func collect(byID map[string]models.Person, ids map[string]bool) []models.Person {
	if len(ids) == 0 {
		return nil
	}
	out := make([]models.Person, 0, len(ids))
	for id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
