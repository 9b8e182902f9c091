// Package kinship normalizes and validates relationship edges so the family
// graph never violates structural invariants, and keeps derived sibling/parent
// edges synchronized.
package kinship

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/metrics"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

// MaxParentCount caps the number of distinct parents any person may have.
const MaxParentCount = 2

type PersonStore interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
}

type RelationshipStore interface {
	ListByPerson(ctx context.Context, groupID, personID string) ([]models.Relationship, error)
	ListBetween(ctx context.Context, groupID, personA, personB string) ([]models.Relationship, error)
	Create(ctx context.Context, rel *models.Relationship) (*models.Relationship, error)
}

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type GroupStore interface {
	GetByIDForUpdate(ctx context.Context, id string) (*models.Group, error)
}

type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Engine enforces kinship invariants on edge creation
type Engine struct {
	logger        ectologger.Logger
	db            TxBeginner
	groups        GroupStore
	persons       PersonStore
	relationships RelationshipStore
	members       MembershipStore
}

func NewEngine(
	logger ectologger.Logger,
	db TxBeginner,
	groups GroupStore,
	persons PersonStore,
	relationships RelationshipStore,
	members MembershipStore,
) *Engine {
	return &Engine{
		logger:        logger,
		db:            db,
		groups:        groups,
		persons:       persons,
		relationships: relationships,
		members:       members,
	}
}

// CreateRelationship canonicalizes, validates, and persists a kinship edge,
// then synchronizes derived edges. The duplicate and invariant checks read
// under a lock on the group row, so concurrent edge creates for the same
// group serialize and cannot both pass a capacity check that only one of
// them should.
//
// The request convention is: PARENT means "to is a parent of from", CHILD
// means "to is a child of from". Both are stored as PARENT edges oriented
// parent -> child.
func (e *Engine) CreateRelationship(ctx context.Context, groupID, requesterID string, req models.CreateRelationshipRequest) (*models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "kinship.Engine.CreateRelationship")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"group_id":       groupID,
		"from_person_id": req.FromPersonID,
		"to_person_id":   req.ToPersonID,
		"type":           req.Type,
	})

	isMember, err := e.members.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only group members can create relationships")
	}

	from, err := e.persons.GetByID(ctx, req.FromPersonID)
	if err != nil {
		return nil, err
	}
	to, err := e.persons.GetByID(ctx, req.ToPersonID)
	if err != nil {
		return nil, err
	}
	if from.GroupID != groupID || to.GroupID != groupID {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person does not belong to this group")
	}

	edge := canonicalize(groupID, req)

	if edge.FromPersonID == edge.ToPersonID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot create a relationship from a person to themselves")
	}

	ctx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := e.groups.GetByIDForUpdate(ctx, groupID); err != nil {
		return nil, err
	}

	exists, err := e.edgeExists(ctx, edge)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "relationship already exists")
	}

	if err := e.checkInvariants(ctx, edge); err != nil {
		return nil, err
	}

	saved, err := e.relationships.Create(ctx, edge)
	if err != nil {
		return nil, err
	}

	switch edge.Type {
	case models.RelationshipSibling:
		err = e.syncSiblingParents(ctx, edge, log)
	case models.RelationshipParent:
		err = e.syncParentToSiblings(ctx, edge, log)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.RelationshipsCreatedTotal.WithLabelValues(string(saved.Type)).Inc()
	log.WithFields(map[string]any{"relationship_id": saved.ID}).Info("Created relationship")
	return saved, nil
}

// canonicalize rewrites the requested edge so only parent -> child PARENT
// edges are ever stored.
func canonicalize(groupID string, req models.CreateRelationshipRequest) *models.Relationship {
	edge := &models.Relationship{
		GroupID:      groupID,
		FromPersonID: req.FromPersonID,
		ToPersonID:   req.ToPersonID,
		Type:         req.Type,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	}

	switch req.Type {
	case models.RelationshipParent:
		// "to is parent of from": store parent -> child
		edge.FromPersonID = req.ToPersonID
		edge.ToPersonID = req.FromPersonID
	case models.RelationshipChild:
		// "to is child of from": already oriented parent -> child
		edge.Type = models.RelationshipParent
	}
	return edge
}

// edgeExists checks for a duplicate of the canonical edge. SPOUSE and SIBLING
// are undirected so both directions count; PARENT is direction-exact.
func (e *Engine) edgeExists(ctx context.Context, edge *models.Relationship) (bool, error) {
	existing, err := e.relationships.ListBetween(ctx, edge.GroupID, edge.FromPersonID, edge.ToPersonID)
	if err != nil {
		return false, err
	}
	for _, rel := range existing {
		if rel.Type != edge.Type {
			continue
		}
		if edge.Type == models.RelationshipParent {
			if rel.FromPersonID == edge.FromPersonID && rel.ToPersonID == edge.ToPersonID {
				return true, nil
			}
			continue
		}
		return true, nil
	}
	return false, nil
}

// checkInvariants runs the parent-capacity checks that must fail before any
// write happens.
func (e *Engine) checkInvariants(ctx context.Context, edge *models.Relationship) error {
	switch edge.Type {
	case models.RelationshipSibling:
		parentsA, err := e.parentIDs(ctx, edge.GroupID, edge.FromPersonID)
		if err != nil {
			return err
		}
		parentsB, err := e.parentIDs(ctx, edge.GroupID, edge.ToPersonID)
		if err != nil {
			return err
		}
		union := make(map[string]struct{}, len(parentsA)+len(parentsB))
		for p := range parentsA {
			union[p] = struct{}{}
		}
		for p := range parentsB {
			union[p] = struct{}{}
		}
		if len(union) > MaxParentCount {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "siblings cannot have more than %d distinct parents between them", MaxParentCount)
		}

	case models.RelationshipParent:
		parentID := edge.FromPersonID
		childID := edge.ToPersonID
		if err := e.ensureParentCapacity(ctx, edge.GroupID, childID, parentID); err != nil {
			return err
		}
		// the new parent propagates to every declared sibling, so each
		// sibling needs capacity too
		siblings, err := e.siblingIDs(ctx, edge.GroupID, childID)
		if err != nil {
			return err
		}
		for sibling := range siblings {
			if err := e.ensureParentCapacity(ctx, edge.GroupID, sibling, parentID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureParentCapacity fails when the person already has MaxParentCount
// distinct parents and newParentID is not one of them.
func (e *Engine) ensureParentCapacity(ctx context.Context, groupID, personID, newParentID string) error {
	parents, err := e.parentIDs(ctx, groupID, personID)
	if err != nil {
		return err
	}
	if _, known := parents[newParentID]; known {
		return nil
	}
	if len(parents) >= MaxParentCount {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "person %s already has %d parents", personID, MaxParentCount)
	}
	return nil
}

// syncSiblingParents links each endpoint of a new SIBLING edge to the other
// endpoint's parents.
func (e *Engine) syncSiblingParents(ctx context.Context, edge *models.Relationship, log ectologger.Logger) error {
	if err := e.copyParents(ctx, edge.GroupID, edge.FromPersonID, edge.ToPersonID, log); err != nil {
		return err
	}
	return e.copyParents(ctx, edge.GroupID, edge.ToPersonID, edge.FromPersonID, log)
}

// copyParents creates PARENT edges from source's parents to target where
// missing. Capacity was guaranteed by the pre-check; it is re-checked per edge
// anyway and violations are skipped rather than failing the whole write.
func (e *Engine) copyParents(ctx context.Context, groupID, sourceID, targetID string, log ectologger.Logger) error {
	sourceParents, err := e.parentIDs(ctx, groupID, sourceID)
	if err != nil {
		return err
	}
	targetParents, err := e.parentIDs(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	for parentID := range sourceParents {
		if _, linked := targetParents[parentID]; linked {
			continue
		}
		if len(targetParents) >= MaxParentCount {
			log.WithFields(map[string]any{"person_id": targetID, "parent_id": parentID}).Warn("Skipping derived parent edge, capacity reached")
			continue
		}
		if _, err := e.relationships.Create(ctx, &models.Relationship{
			GroupID:      groupID,
			FromPersonID: parentID,
			ToPersonID:   targetID,
			Type:         models.RelationshipParent,
		}); err != nil {
			return err
		}
		targetParents[parentID] = struct{}{}
	}
	return nil
}

// syncParentToSiblings propagates a new PARENT edge to the child's declared
// siblings. One hop only; siblings-of-siblings are not touched.
func (e *Engine) syncParentToSiblings(ctx context.Context, edge *models.Relationship, log ectologger.Logger) error {
	parentID := edge.FromPersonID
	childID := edge.ToPersonID

	siblings, err := e.siblingIDs(ctx, edge.GroupID, childID)
	if err != nil {
		return err
	}
	for siblingID := range siblings {
		parents, err := e.parentIDs(ctx, edge.GroupID, siblingID)
		if err != nil {
			return err
		}
		if _, linked := parents[parentID]; linked {
			continue
		}
		if len(parents) >= MaxParentCount {
			log.WithFields(map[string]any{"person_id": siblingID, "parent_id": parentID}).Warn("Skipping derived parent edge, capacity reached")
			continue
		}
		if _, err := e.relationships.Create(ctx, &models.Relationship{
			GroupID:      edge.GroupID,
			FromPersonID: parentID,
			ToPersonID:   siblingID,
			Type:         models.RelationshipParent,
		}); err != nil {
			return err
		}
	}
	return nil
}

// parentIDs returns the distinct parents of a person.
func (e *Engine) parentIDs(ctx context.Context, groupID, personID string) (map[string]struct{}, error) {
	edges, err := e.relationships.ListByPerson(ctx, groupID, personID)
	if err != nil {
		return nil, err
	}
	parents := make(map[string]struct{})
	for _, rel := range edges {
		if rel.Type == models.RelationshipParent && rel.ToPersonID == personID {
			parents[rel.FromPersonID] = struct{}{}
		}
	}
	return parents, nil
}

// siblingIDs returns the persons linked to personID by an explicit SIBLING
// edge in either direction.
func (e *Engine) siblingIDs(ctx context.Context, groupID, personID string) (map[string]struct{}, error) {
	edges, err := e.relationships.ListByPerson(ctx, groupID, personID)
	if err != nil {
		return nil, err
	}
	siblings := make(map[string]struct{})
	for _, rel := range edges {
		if rel.Type != models.RelationshipSibling {
			continue
		}
		if other := rel.Other(personID); other != "" {
			siblings[other] = struct{}{}
		}
	}
	return siblings, nil
}
