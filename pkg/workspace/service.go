// Package workspace implements draft editing sessions. Edits are staged as an
// ordered changeset log instead of touching the live graph; committing hands
// the log to the merge review flow.
package workspace

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/banyan/pkg/metrics"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

type GroupStore interface {
	GetByID(ctx context.Context, id string) (*models.Group, error)
}

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type WorkspaceStore interface {
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	FindByGroupAndUser(ctx context.Context, groupID, userID string) (*models.Workspace, error)
	Create(ctx context.Context, ws *models.Workspace) (*models.Workspace, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkspaceStatus) error
}

type ChangeSetStore interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]models.ChangeSet, error)
	ListByWorkspaceAndEntity(ctx context.Context, workspaceID, entityID string) ([]models.ChangeSet, error)
	MaxSequence(ctx context.Context, workspaceID string) (int, error)
	Create(ctx context.Context, cs *models.ChangeSet) (*models.ChangeSet, error)
	DeleteByWorkspace(ctx context.Context, workspaceID string) error
}

type PersonStore interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
}

type MergeRequestStore interface {
	Create(ctx context.Context, mr *models.MergeRequest) (*models.MergeRequest, error)
}

// Service owns the workspace lifecycle: open, stage, reset, commit.
type Service struct {
	logger        ectologger.Logger
	groups        GroupStore
	members       MembershipStore
	workspaces    WorkspaceStore
	changesets    ChangeSetStore
	persons       PersonStore
	mergeRequests MergeRequestStore
}

func NewService(
	logger ectologger.Logger,
	groups GroupStore,
	members MembershipStore,
	workspaces WorkspaceStore,
	changesets ChangeSetStore,
	persons PersonStore,
	mergeRequests MergeRequestStore,
) *Service {
	return &Service{
		logger:        logger,
		groups:        groups,
		members:       members,
		workspaces:    workspaces,
		changesets:    changesets,
		persons:       persons,
		mergeRequests: mergeRequests,
	}
}

// CreateOrGet returns the user's active workspace for the group, creating one
// pinned to the group's current version when none is open. A CONFLICT
// workspace is still "open": the user keeps it until they reset or rebase.
func (s *Service) CreateOrGet(ctx context.Context, groupID, userID string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.CreateOrGet")
	defer span.End()

	isMember, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only group members can open a workspace")
	}

	existing, err := s.workspaces.FindByGroupAndUser(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	ws := &models.Workspace{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		UserID:      userID,
		BaseVersion: group.Version,
		Status:      models.WorkspaceEditing,
	}
	return s.workspaces.Create(ctx, ws)
}

// Get returns a workspace the caller owns.
func (s *Service) Get(ctx context.Context, workspaceID, userID string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.Get")
	defer span.End()

	return s.ownedWorkspace(ctx, workspaceID, userID)
}

// Changes lists the workspace's changeset log in staging order.
func (s *Service) Changes(ctx context.Context, workspaceID, userID string) ([]models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.Changes")
	defer span.End()

	if _, err := s.ownedWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.changesets.ListByWorkspace(ctx, workspaceID)
}

// StagePersonCreate records a CREATE changeset and returns it. The new
// person's id is minted here so later changesets in the same workspace can
// reference it before anything is persisted.
func (s *Service) StagePersonCreate(ctx context.Context, workspaceID, userID string, req *models.StagePersonRequest) (*models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.StagePersonCreate")
	defer span.End()

	if _, err := s.editableWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}

	payload := models.PersonPayload{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Gender:          req.Gender,
		BirthDate:       req.BirthDate,
		DeathDate:       req.DeathDate,
		BirthPlace:      req.BirthPlace,
		CurrentSpouseID: req.CurrentSpouseID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return s.appendChangeSet(ctx, workspaceID, &models.ChangeSet{
		ActionType: models.ActionCreate,
		EntityType: models.EntityPerson,
		EntityID:   uuid.New().String(),
		Payload:    raw,
	})
}

// StagePersonUpdate records an UPDATE changeset carrying a partial patch. The
// pre-image captured in PreviousPayload reflects earlier staged edits, not
// just the persisted row.
func (s *Service) StagePersonUpdate(ctx context.Context, workspaceID, userID, personID string, patch models.PersonPatch) (*models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.StagePersonUpdate")
	defer span.End()

	if patch.IsEmpty() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "update must change at least one field")
	}

	if _, err := s.editableWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}

	previous, err := s.effectiveState(ctx, workspaceID, personID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	prevRaw, err := json.Marshal(previous)
	if err != nil {
		return nil, err
	}

	return s.appendChangeSet(ctx, workspaceID, &models.ChangeSet{
		ActionType:      models.ActionUpdate,
		EntityType:      models.EntityPerson,
		EntityID:        personID,
		Payload:         raw,
		PreviousPayload: prevRaw,
	})
}

// StagePersonDelete records a DELETE changeset. Further edits to the person in
// this workspace are rejected.
func (s *Service) StagePersonDelete(ctx context.Context, workspaceID, userID, personID string) (*models.ChangeSet, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.StagePersonDelete")
	defer span.End()

	if _, err := s.editableWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}

	previous, err := s.effectiveState(ctx, workspaceID, personID)
	if err != nil {
		return nil, err
	}

	prevRaw, err := json.Marshal(previous)
	if err != nil {
		return nil, err
	}

	return s.appendChangeSet(ctx, workspaceID, &models.ChangeSet{
		ActionType:      models.ActionDelete,
		EntityType:      models.EntityPerson,
		EntityID:        personID,
		PreviousPayload: prevRaw,
	})
}

// Reset discards every staged change and reopens the workspace against the
// group's current version. This is the way out of a CONFLICT workspace.
func (s *Service) Reset(ctx context.Context, workspaceID, userID string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.Reset")
	defer span.End()

	ws, err := s.ownedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if ws.Status != models.WorkspaceEditing && ws.Status != models.WorkspaceConflict {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "workspace is %s and cannot be reset", ws.Status)
	}

	if err := s.changesets.DeleteByWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	if err := s.workspaces.UpdateStatus(ctx, workspaceID, models.WorkspaceEditing); err != nil {
		return nil, err
	}
	return s.workspaces.GetByID(ctx, workspaceID)
}

// Commit closes the workspace for editing and opens a PENDING merge request
// over its changeset log.
func (s *Service) Commit(ctx context.Context, workspaceID, userID string, req *models.CommitRequest) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Service.Commit")
	defer span.End()

	ws, err := s.editableWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	changes, err := s.changesets.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "nothing to commit")
	}
	if err := validateLog(changes); err != nil {
		return nil, err
	}

	mr := &models.MergeRequest{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		GroupID:     ws.GroupID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.MergePending,
		CreatedBy:   userID,
	}
	created, err := s.mergeRequests.Create(ctx, mr)
	if err != nil {
		return nil, err
	}

	if err := s.workspaces.UpdateStatus(ctx, workspaceID, models.WorkspaceSubmitted); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"workspace_id":     workspaceID,
		"merge_request_id": created.ID,
		"changesets":       len(changes),
	}).Info("workspace committed for review")

	return created, nil
}

// ownedWorkspace loads the workspace and enforces ownership.
func (s *Service) ownedWorkspace(ctx context.Context, workspaceID, userID string) (*models.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.UserID != userID {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "workspace belongs to another user")
	}
	return ws, nil
}

// editableWorkspace additionally requires EDITING status.
func (s *Service) editableWorkspace(ctx context.Context, workspaceID, userID string) (*models.Workspace, error) {
	ws, err := s.ownedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if ws.Status != models.WorkspaceEditing {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "workspace is %s and cannot accept changes", ws.Status)
	}
	return ws, nil
}

// effectiveState resolves what the person looks like from inside the
// workspace: staged CREATE/UPDATE changesets overlay the persisted row.
// Returns 404 when the person neither exists nor was created here, and 400
// when the person was deleted earlier in the same workspace.
func (s *Service) effectiveState(ctx context.Context, workspaceID, personID string) (models.PersonPayload, error) {
	var zero models.PersonPayload

	staged, err := s.changesets.ListByWorkspaceAndEntity(ctx, workspaceID, personID)
	if err != nil {
		return zero, err
	}

	var base *models.PersonPayload
	for _, cs := range staged {
		if cs.ActionType != models.ActionCreate {
			continue
		}
		payload, err := cs.CreatePayload()
		if err != nil {
			return zero, err
		}
		base = &payload
	}

	if base == nil {
		person, err := s.persons.GetByID(ctx, personID)
		if err != nil {
			return zero, err
		}
		payload := person.Payload()
		base = &payload
	}

	// replay staged patches in sequence order on top of the base snapshot
	effective := models.Person{}
	effective.ApplyPayload(*base)
	for _, cs := range staged {
		switch cs.ActionType {
		case models.ActionUpdate:
			patch, err := cs.PatchPayload()
			if err != nil {
				return zero, err
			}
			patch.Apply(&effective)
		case models.ActionDelete:
			return zero, httperror.NewHTTPError(http.StatusBadRequest, "person was deleted in this workspace")
		}
	}

	return effective.Payload(), nil
}

// appendChangeSet assigns the next sequence number and persists the entry.
func (s *Service) appendChangeSet(ctx context.Context, workspaceID string, cs *models.ChangeSet) (*models.ChangeSet, error) {
	maxSeq, err := s.changesets.MaxSequence(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	cs.ID = uuid.New().String()
	cs.WorkspaceID = workspaceID
	cs.SequenceNumber = maxSeq + 1

	created, err := s.changesets.Create(ctx, cs)
	if err != nil {
		return nil, err
	}
	metrics.ChangeSetsStagedTotal.WithLabelValues(string(cs.ActionType)).Inc()
	return created, nil
}

// validateLog rejects logs that stage an edit after a delete of the same
// entity. Staging already guards this; the commit check covers logs assembled
// through older code paths or direct writes.
func validateLog(changes []models.ChangeSet) error {
	deleted := make(map[string]bool)
	for _, cs := range changes {
		if deleted[cs.EntityID] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "changeset log edits person %s after deleting it", cs.EntityID)
		}
		if cs.ActionType == models.ActionDelete {
			deleted[cs.EntityID] = true
		}
	}
	return nil
}
